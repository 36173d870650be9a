package downloads

import (
	"net/url"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/events"
)

// Restore rebuilds the active set from the durable store and reattaches
// the engine's live transfers to their owning jobs by URL. Live transfers
// no stored job claims are cancelled outright. Stored jobs left with no
// live transfer finished while the process was away: they complete at the
// job level and are dropped from the set. Bad or missing stored state
// degrades to an empty set; a restart never fails because of it.
//
// Call Restore once, before Run.
func (s *Service) Restore() {
	jobs, err := s.store.Load()
	if err != nil {
		s.log.Warn("Discarding unreadable active set: %v", err)
		jobs = nil
	}

	var orphans int
	for _, h := range s.engine.Transfers() {
		job, _ := resolveAmong(jobs, h.URL())
		if job == nil {
			h.Cancel()
			orphans++
			continue
		}
		job.Attach(h)
	}

	var survivors, finished []*domain.Job
	for _, job := range jobs {
		if len(job.Handles()) == 0 {
			finished = append(finished, job)
			continue
		}
		survivors = append(survivors, job)
	}

	s.mu.Lock()
	s.active = survivors
	s.schedulePersist()
	s.mu.Unlock()

	for _, job := range finished {
		s.dispatcher.Dispatch(events.Event{
			Name:     events.JobCompleted,
			Job:      job,
			Fraction: 1,
			State:    domain.StateCompleted,
		})
		s.recordOutcome(job, domain.StateCompleted, nil)
	}
	for _, job := range survivors {
		s.emit(events.JobRestored, job, nil, nil)
	}

	s.log.Info("Restored %d job(s), %d finished while away, cancelled %d orphan transfer(s)",
		len(survivors), len(finished), orphans)
}

func resolveAmong(jobs []*domain.Job, u *url.URL) (*domain.Job, *domain.Resource) {
	for _, j := range jobs {
		if r := j.ResourceForURL(u); r != nil {
			return j, r
		}
	}
	return nil, nil
}
