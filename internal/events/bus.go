package events

import "sync"

// Bus fans events out to subscribers keyed by event name. Publishing
// happens on the dispatcher's queue, so subscribers of the same bus never
// run concurrently with each other.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[Name]map[uint64]func(Event)
	all  map[uint64]func(Event)
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[Name]map[uint64]func(Event)),
		all:  make(map[uint64]func(Event)),
	}
}

// Subscribe registers fn for events named name. The returned cancel
// removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(name Name, fn func(Event)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.subs[name] == nil {
		b.subs[name] = make(map[uint64]func(Event))
	}
	b.subs[name][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[name], id)
	}
}

// SubscribeAll registers fn for every event regardless of name.
func (b *Bus) SubscribeAll(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.all[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers ev to every matching subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs[ev.Name])+len(b.all))
	for _, fn := range b.subs[ev.Name] {
		fns = append(fns, fn)
	}
	for _, fn := range b.all {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
