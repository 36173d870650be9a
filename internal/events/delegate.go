package events

import "github.com/haul-dl/haul/internal/domain"

// Delegate receives lifecycle callbacks from the download service. Every
// method runs on the dispatcher's queue, one call at a time, so a slow
// delegate delays later notifications but never the service itself.
type Delegate interface {
	JobBegan(j *domain.Job)
	JobRestored(j *domain.Job)
	JobUpdated(j *domain.Job, fraction float64, state domain.State)
	JobCompleted(j *domain.Job)
	JobFailed(j *domain.Job, err error)
	ResourceBegan(j *domain.Job, r *domain.Resource)
	ResourceUpdated(j *domain.Job, r *domain.Resource, fraction float64)
	ResourceCompleted(j *domain.Job, r *domain.Resource)
	ResourceFailed(j *domain.Job, r *domain.Resource, err error)
}

// NopDelegate implements Delegate doing nothing. Embed it to handle only
// the callbacks you care about.
type NopDelegate struct{}

func (NopDelegate) JobBegan(*domain.Job)                                   {}
func (NopDelegate) JobRestored(*domain.Job)                                {}
func (NopDelegate) JobUpdated(*domain.Job, float64, domain.State)          {}
func (NopDelegate) JobCompleted(*domain.Job)                               {}
func (NopDelegate) JobFailed(*domain.Job, error)                           {}
func (NopDelegate) ResourceBegan(*domain.Job, *domain.Resource)            {}
func (NopDelegate) ResourceUpdated(*domain.Job, *domain.Resource, float64) {}
func (NopDelegate) ResourceCompleted(*domain.Job, *domain.Resource)        {}
func (NopDelegate) ResourceFailed(*domain.Job, *domain.Resource, error)    {}
