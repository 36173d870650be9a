package events

import "sync"

// Queue runs functions one after another in submission order.
type Queue interface {
	Do(fn func())
}

// Direct runs fn on the calling goroutine. Useful in tests and for
// callers that already serialize their own delivery.
type Direct struct{}

func (Direct) Do(fn func()) { fn() }

// SerialQueue is a Queue backed by a single worker goroutine. Submission
// never blocks, however slow the work already queued is, so emitters can
// hold locks across Do without handing their latency to consumers.
type SerialQueue struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	kick   chan struct{}
	done   chan struct{}
}

func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.fns) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.kick
			q.mu.Lock()
		}
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
	}
}

// Do submits fn. Work submitted after Close is dropped.
func (q *SerialQueue) Do(fn func()) {
	q.mu.Lock()
	if !q.closed {
		q.fns = append(q.fns, fn)
		select {
		case q.kick <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
}

// Close stops accepting work and waits for everything already queued to
// finish.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	q.closed = true
	select {
	case q.kick <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	<-q.done
}

// Dispatcher hands service emissions to the delegate, the bus and the
// job's own observers, all marshalled onto one queue so consumers never
// see a job's events out of order or concurrently. A nil delegate is
// replaced with NopDelegate; a nil bus disables publication.
type Dispatcher struct {
	queue    Queue
	delegate Delegate
	bus      *Bus
}

func NewDispatcher(queue Queue, delegate Delegate, bus *Bus) *Dispatcher {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	return &Dispatcher{queue: queue, delegate: delegate, bus: bus}
}

// Dispatch queues ev for delivery: the delegate first, then bus
// subscribers, then the job's observers.
func (d *Dispatcher) Dispatch(ev Event) {
	d.queue.Do(func() { d.deliver(ev) })
}

func (d *Dispatcher) deliver(ev Event) {
	switch ev.Name {
	case JobBegan:
		d.delegate.JobBegan(ev.Job)
	case JobRestored:
		d.delegate.JobRestored(ev.Job)
	case JobUpdated:
		d.delegate.JobUpdated(ev.Job, ev.Fraction, ev.State)
	case JobCompleted:
		d.delegate.JobCompleted(ev.Job)
	case JobFailed:
		d.delegate.JobFailed(ev.Job, ev.Err)
	case ResourceBegan:
		d.delegate.ResourceBegan(ev.Job, ev.Resource)
	case ResourceUpdated:
		d.delegate.ResourceUpdated(ev.Job, ev.Resource, ev.Fraction)
	case ResourceCompleted:
		d.delegate.ResourceCompleted(ev.Job, ev.Resource)
	case ResourceFailed:
		d.delegate.ResourceFailed(ev.Job, ev.Resource, ev.Err)
	}

	if d.bus != nil {
		d.bus.Publish(ev)
	}
	if ev.Job != nil {
		ev.Job.Notify()
	}
}
