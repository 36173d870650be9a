package domain

import (
	"net/url"
	"path/filepath"
	"sync"

	"github.com/haul-dl/haul/internal/transfer"
)

// State is a job's aggregate lifecycle state, derived from its bound
// handles on every read and never stored.
type State string

const (
	StateRunning   State = "running"
	StateSuspended State = "suspended"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Job is a named group of resources downloaded and tracked as a unit.
// Resources are fixed at construction; handles are bound later, one per
// resource in resource order, and may be fewer than the resources after a
// restart reattaches only the transfers still alive in the engine.
type Job struct {
	ID        string
	ClientID  string
	Name      string
	Resources []*Resource

	mu        sync.Mutex
	handles   []transfer.Handle
	observers *observerSet
}

// NewJob builds an unbound job. The id is derived from clientID, so the
// same identifier names the same job across restarts. Resources sharing a
// URL collapse to the first occurrence.
func NewJob(clientID, name string, resources []*Resource) *Job {
	seen := make(map[string]bool, len(resources))
	kept := make([]*Resource, 0, len(resources))
	for _, r := range resources {
		key := r.URL.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}

	return &Job{
		ID:        DeriveID(clientID),
		ClientID:  clientID,
		Name:      name,
		Resources: kept,
		observers: newObserverSet(),
	}
}

// State reads the first bound handle: running, suspended, completed and
// cancelling map straight across, anything else is failed. A job with no
// handles is suspended. Reading only the first handle keeps a
// multi-resource job reported running for as long as its first transfer
// runs, whatever the later ones are doing.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.handles) == 0 {
		return StateSuspended
	}

	switch j.handles[0].State() {
	case transfer.StateRunning:
		return StateRunning
	case transfer.StateSuspended:
		return StateSuspended
	case transfer.StateCompleted:
		return StateCompleted
	case transfer.StateCancelling:
		return StateCancelled
	default:
		return StateFailed
	}
}

// Fraction is the unweighted mean of the bound handles' progress, 0 when
// nothing is bound.
func (j *Job) Fraction() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.handles) == 0 {
		return 0
	}

	var sum float64
	for _, h := range j.handles {
		sum += h.Fraction()
	}
	return sum / float64(len(j.handles))
}

// FractionFor reports the progress of the handle bound to r, 0 if none is.
func (j *Job) FractionFor(r *Resource) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, h := range j.handles {
		if r.Is(h.URL()) {
			return h.Fraction()
		}
	}
	return 0
}

// ResourceForURL finds the resource addressed by u, nil if the job has
// none.
func (j *Job) ResourceForURL(u *url.URL) *Resource {
	for _, r := range j.Resources {
		if r.Is(u) {
			return r
		}
	}
	return nil
}

// SuggestedPath is the destination hint for a resource's payload: the
// job's container directory joined with the resource's local filename.
// The container directory is the job id, so the hint is stable across
// restarts.
func (j *Job) SuggestedPath(r *Resource) string {
	return filepath.Join(j.ID, r.Filename)
}

// Attach binds one more transfer handle to the job.
func (j *Job) Attach(h transfer.Handle) {
	j.mu.Lock()
	j.handles = append(j.handles, h)
	j.mu.Unlock()
}

// Handles returns the bound handles in binding order.
func (j *Job) Handles() []transfer.Handle {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]transfer.Handle(nil), j.handles...)
}

// Observe subscribes fn to the job's changes. fn runs once right away with
// the current state so a fresh observer never starts stale, then again on
// every change until the returned observation is cancelled.
func (j *Job) Observe(fn func(*Job)) *Observation {
	obs := j.observers.add(fn)
	fn(j)
	return obs
}

// Notify delivers the current state to every live observer.
func (j *Job) Notify() {
	for _, fn := range j.observers.snapshot() {
		fn(j)
	}
}
