// Package events carries the download service's canonical notification
// stream to delegates, bus subscribers and per-job observers, delivering
// everything on one sequential queue.
package events

import "github.com/haul-dl/haul/internal/domain"

// Name identifies one kind of lifecycle event.
type Name string

const (
	JobBegan          Name = "job.begin"
	JobRestored       Name = "job.restored"
	JobUpdated        Name = "job.update"
	JobCompleted      Name = "job.complete"
	JobFailed         Name = "job.fail"
	ResourceBegan     Name = "resource.begin"
	ResourceUpdated   Name = "resource.update"
	ResourceCompleted Name = "resource.complete"
	ResourceFailed    Name = "resource.fail"
)

// Event is one lifecycle notification. Resource is nil for job-level
// events. Fraction and State are snapshots taken when the event was
// emitted; the job itself may have moved on by the time a subscriber runs.
type Event struct {
	Name     Name
	Job      *domain.Job
	Resource *domain.Resource
	Fraction float64
	State    domain.State
	Err      error
}
