package downloads

import (
	"context"
	"net/url"
	"sync"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/events"
	"github.com/haul-dl/haul/internal/transfer"
)

// Run consumes the engine's event stream until ctx is cancelled or the
// engine closes the stream. Exactly one Run per engine.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.engine.Events():
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Service) handleEvent(ev transfer.Event) {
	switch ev.Kind {
	case transfer.EventProgress:
		s.handleProgress(ev)
	case transfer.EventFinished:
		s.handleFinished(ev)
	case transfer.EventDone:
		s.handleDone(ev)
	case transfer.EventDrained:
		s.handleDrained()
	}
}

// handleProgress turns engine byte counts into Update events. Progress for
// a transfer no active job owns is dropped; it belongs to a job that
// already left the set.
func (s *Service) handleProgress(ev transfer.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, r := s.resolveLocked(ev.Handle.URL())
	if job == nil {
		s.log.Debug("Dropping progress for unknown transfer %s", ev.Handle.URL())
		return
	}

	s.emit(events.ResourceUpdated, job, r, nil)
	s.emit(events.JobUpdated, job, nil, nil)
}

// handleFinished reports the resource complete and hands the payload to
// the completion function on its own goroutine. The job itself completes
// only after the function signals done and every bound handle has
// finished.
func (s *Service) handleFinished(ev transfer.Event) {
	s.mu.Lock()
	job, r := s.resolveLocked(ev.Handle.URL())
	if job == nil {
		s.mu.Unlock()
		s.log.Debug("Dropping finished payload for unknown transfer %s", ev.Handle.URL())
		return
	}

	s.emit(events.ResourceCompleted, job, r, nil)
	suggested := job.SuggestedPath(r)
	s.mu.Unlock()

	go s.completion(job, r, ev.Location, suggested, s.onceDone(job))
}

func (s *Service) onceDone(job *domain.Job) func() {
	var once sync.Once
	return func() {
		once.Do(func() { s.settle(job) })
	}
}

// settle completes the job once its last payload has been handed over.
func (s *Service) settle(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(job.ID) == nil {
		return
	}
	handles := job.Handles()
	if len(handles) == 0 {
		return
	}
	for _, h := range handles {
		if h.State() != transfer.StateCompleted {
			return
		}
	}

	s.emit(events.JobCompleted, job, nil, nil)
	s.dequeueLocked(job)
	s.recordOutcome(job, domain.StateCompleted, nil)
	s.log.Info("Job %s completed", job.ClientID)
}

// handleDone reacts to a transfer's terminal signal. A nil error is a pure
// completion marker and produces no action; the payload already arrived
// through the finished path. An error fails the whole job: siblings are
// cancelled, Fail events go out for the resource and the job, and the job
// leaves the active set.
func (s *Service) handleDone(ev transfer.Event) {
	if ev.Err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, r := s.resolveLocked(ev.Handle.URL())
	if job == nil {
		s.log.Debug("Dropping failure for unknown transfer %s: %v", ev.Handle.URL(), ev.Err)
		return
	}

	for _, h := range job.Handles() {
		if h != ev.Handle {
			h.Cancel()
		}
	}

	cause := &domain.TransferError{Resource: r, Err: ev.Err}
	s.emit(events.ResourceFailed, job, r, ev.Err)
	s.emit(events.JobFailed, job, nil, cause)
	s.dequeueLocked(job)
	s.recordOutcome(job, domain.StateFailed, cause)
	s.log.Warn("Job %s failed: %v", job.ClientID, cause)
}

// handleDrained hands the flush signal to the stored handler, consuming
// it.
func (s *Service) handleDrained() {
	s.mu.Lock()
	fn := s.drain
	s.drain = nil
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (s *Service) resolveLocked(u *url.URL) (*domain.Job, *domain.Resource) {
	for _, j := range s.active {
		if r := j.ResourceForURL(u); r != nil {
			return j, r
		}
	}
	return nil, nil
}
