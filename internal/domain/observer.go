package domain

import "sync"

// Observation is a caller's live subscription to one job's change stream.
// It holds no reference to the job itself, only to the job's registry, so
// dropping an observation never keeps a finished job reachable.
type Observation struct {
	id  uint64
	set *observerSet
}

// Cancel removes the subscription. Cancelling twice is a no-op; teardown
// paths may race with natural cleanup and both must be safe.
func (o *Observation) Cancel() {
	o.set.remove(o.id)
}

// observerSet maps subscription tokens to callbacks. Callbacks are invoked
// in no particular order.
type observerSet struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(*Job)
}

func newObserverSet() *observerSet {
	return &observerSet{subs: make(map[uint64]func(*Job))}
}

func (s *observerSet) add(fn func(*Job)) *Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return &Observation{id: id, set: s}
}

func (s *observerSet) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *observerSet) snapshot() []func(*Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(*Job), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}
