// Package downloads owns the active job set. It binds resources to
// transfer engine operations, persists and restores jobs across restarts,
// and emits the lifecycle event stream consumed by delegates, the event
// bus and per-job observers.
package downloads

import (
	"errors"
	"sync"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/events"
	"github.com/haul-dl/haul/internal/infra/logger"
	"github.com/haul-dl/haul/internal/transfer"
)

// ErrClosed indicates an operation against a service that has shut down
var ErrClosed = errors.New("download service closed")

// Store persists the active job set as one document, rewritten wholesale.
type Store interface {
	Save(jobs []*domain.Job) error
	Load() ([]*domain.Job, error)
}

// Archive records jobs that reached a terminal outcome. Archiving is best
// effort: failures are logged and swallowed.
type Archive interface {
	Record(job *domain.Job, outcome domain.State, cause error) error
}

// CompletionFunc receives each finished payload. location is the temporary
// file produced by the engine; suggested is the destination hint, the
// job's container directory joined with the resource's filename. The
// function owns moving the payload and must call done exactly once; the
// job cannot complete before every done has fired.
type CompletionFunc func(job *domain.Job, r *domain.Resource, location, suggested string, done func())

// Config wires a Service. Engine and Store are required, everything else
// has a workable zero value: no archive, a payload handler that accepts
// without copying, a no-op delegate, a fresh bus and a dedicated serial
// delivery queue.
type Config struct {
	Engine     transfer.Engine
	Store      Store
	Archive    Archive
	Completion CompletionFunc
	Delegate   events.Delegate
	Bus        *events.Bus
	Queue      events.Queue
	Log        *logger.Logger
}

type Service struct {
	engine     transfer.Engine
	store      Store
	archive    Archive
	completion CompletionFunc
	dispatcher *events.Dispatcher
	bus        *events.Bus
	ownQueue   *events.SerialQueue
	log        *logger.Logger

	mu     sync.Mutex
	active []*domain.Job
	drain  func()
	closed bool

	pmu         sync.Mutex
	pending     []*domain.Job
	pclosed     bool
	pkick       chan struct{}
	persistDone chan struct{}
}

func NewService(cfg Config) *Service {
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	if cfg.Completion == nil {
		cfg.Completion = func(_ *domain.Job, _ *domain.Resource, _, _ string, done func()) { done() }
	}

	s := &Service{
		engine:      cfg.Engine,
		store:       cfg.Store,
		archive:     cfg.Archive,
		completion:  cfg.Completion,
		bus:         cfg.Bus,
		log:         cfg.Log,
		pkick:       make(chan struct{}, 1),
		persistDone: make(chan struct{}),
	}

	queue := cfg.Queue
	if queue == nil {
		s.ownQueue = events.NewSerialQueue()
		queue = s.ownQueue
	}
	s.dispatcher = events.NewDispatcher(queue, cfg.Delegate, cfg.Bus)

	go s.persistLoop()
	return s
}

// Bus exposes the event bus consumers subscribe on.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Enqueue activates job: one transfer is bound per resource in resource
// order, the active set is persisted, every transfer is started, then
// Begin events go out for each resource followed by the job itself.
// Validation failures return synchronously and change nothing.
func (s *Service) Enqueue(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(job.Resources) == 0 {
		return domain.ErrNoResources
	}
	if s.findLocked(job.ID) != nil {
		return domain.ErrDuplicate
	}

	handles := make([]transfer.Handle, 0, len(job.Resources))
	for _, r := range job.Resources {
		h := s.engine.Transfer(r.URL)
		job.Attach(h)
		handles = append(handles, h)
	}

	s.active = append(s.active, job)
	s.schedulePersist()

	for _, h := range handles {
		h.Resume()
	}

	s.log.Info("Enqueued job %s with %d resource(s)", job.ClientID, len(job.Resources))

	for _, r := range job.Resources {
		s.emit(events.ResourceBegan, job, r, nil)
	}
	s.emit(events.JobBegan, job, nil, nil)
	return nil
}

// Dequeue removes job from the active set, if present, and re-persists.
// Bound handles are left running; use Cancel to stop them too.
func (s *Service) Dequeue(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dequeueLocked(job)
}

// Suspend pauses every bound transfer and reports the new aggregate state
// through Update events.
func (s *Service) Suspend(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range job.Handles() {
		h.Suspend()
	}
	s.emitUpdates(job)
}

// Resume continues every bound transfer and reports the new aggregate
// state through Update events.
func (s *Service) Resume(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range job.Handles() {
		h.Resume()
	}
	s.emitUpdates(job)
}

// Cancel stops every bound transfer and fails the job and each of its
// resources with ErrCancelled right away, without waiting for the
// engine's own callbacks. The job leaves the active set.
func (s *Service) Cancel(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range job.Handles() {
		h.Cancel()
	}
	for _, r := range job.Resources {
		s.emit(events.ResourceFailed, job, r, domain.ErrCancelled)
	}
	s.emit(events.JobFailed, job, nil, domain.ErrCancelled)

	if s.dequeueLocked(job) {
		s.recordOutcome(job, domain.StateCancelled, domain.ErrCancelled)
		s.log.Info("Cancelled job %s", job.ClientID)
	}
}

// Lookup finds an active job by its client identifier, nil if absent.
func (s *Service) Lookup(clientID string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.active {
		if j.ClientID == clientID {
			return j
		}
	}
	return nil
}

// Jobs returns a snapshot of the active set in enqueue order.
func (s *Service) Jobs() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Job, len(s.active))
	copy(out, s.active)
	return out
}

// SetDrainHandler stores fn to be called once when the engine reports all
// pending background work flushed. The handler is consumed by the call.
func (s *Service) SetDrainHandler(fn func()) {
	s.mu.Lock()
	s.drain = fn
	s.mu.Unlock()
}

// Close flushes the pending persist, stops the delivery queue it owns and
// rejects further enqueues. It does not touch running transfers.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pmu.Lock()
	s.pclosed = true
	select {
	case s.pkick <- struct{}{}:
	default:
	}
	s.pmu.Unlock()
	<-s.persistDone

	if s.ownQueue != nil {
		s.ownQueue.Close()
	}
	return nil
}

func (s *Service) findLocked(id string) *domain.Job {
	for _, j := range s.active {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (s *Service) dequeueLocked(job *domain.Job) bool {
	for i, cur := range s.active {
		if cur.ID == job.ID {
			s.active = append(s.active[:i], s.active[i+1:]...)
			s.schedulePersist()
			return true
		}
	}
	return false
}

func (s *Service) emit(name events.Name, job *domain.Job, r *domain.Resource, err error) {
	ev := events.Event{
		Name:     name,
		Job:      job,
		Resource: r,
		State:    job.State(),
		Err:      err,
	}
	if r != nil {
		ev.Fraction = job.FractionFor(r)
	} else {
		ev.Fraction = job.Fraction()
	}
	s.dispatcher.Dispatch(ev)
}

func (s *Service) emitUpdates(job *domain.Job) {
	for _, r := range job.Resources {
		s.emit(events.ResourceUpdated, job, r, nil)
	}
	s.emit(events.JobUpdated, job, nil, nil)
}

func (s *Service) recordOutcome(job *domain.Job, outcome domain.State, cause error) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Record(job, outcome, cause); err != nil {
		s.log.Error("Failed to archive job %s: %v", job.ClientID, err)
	}
}

// schedulePersist snapshots the active set for the persist goroutine. A
// newer snapshot replaces one still waiting, so storage always converges
// on the latest state without queueing every intermediate write.
func (s *Service) schedulePersist() {
	snapshot := make([]*domain.Job, len(s.active))
	copy(snapshot, s.active)

	s.pmu.Lock()
	if !s.pclosed {
		s.pending = snapshot
		select {
		case s.pkick <- struct{}{}:
		default:
		}
	}
	s.pmu.Unlock()
}

func (s *Service) persistLoop() {
	defer close(s.persistDone)
	for {
		s.pmu.Lock()
		for s.pending == nil {
			if s.pclosed {
				s.pmu.Unlock()
				return
			}
			s.pmu.Unlock()
			<-s.pkick
			s.pmu.Lock()
		}
		jobs := s.pending
		s.pending = nil
		s.pmu.Unlock()

		if err := s.store.Save(jobs); err != nil {
			s.log.Error("Failed to persist active set: %v", err)
		}
	}
}
