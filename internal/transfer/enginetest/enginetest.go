// Package enginetest provides a scriptable in-memory transfer engine for
// exercising download orchestration without touching the network.
package enginetest

import (
	"net/url"
	"sync"

	"github.com/haul-dl/haul/internal/transfer"
)

// Engine records the transfers asked of it and lets tests script handle
// state and push events to the consumer.
type Engine struct {
	mu      sync.Mutex
	handles []*Handle
	events  chan transfer.Event
}

func New() *Engine {
	return &Engine{events: make(chan transfer.Event, 128)}
}

func (e *Engine) Transfer(u *url.URL) transfer.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := &Handle{url: u, state: transfer.StateSuspended}
	e.handles = append(e.handles, h)
	return h
}

func (e *Engine) Transfers() []transfer.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]transfer.Handle, len(e.handles))
	for i, h := range e.handles {
		out[i] = h
	}
	return out
}

func (e *Engine) Events() <-chan transfer.Event {
	return e.events
}

// Seed registers a handle as if recovered from a previous process, already
// in the given state.
func (e *Engine) Seed(u *url.URL, state transfer.State, fraction float64) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := &Handle{url: u, state: state, fraction: fraction}
	e.handles = append(e.handles, h)
	return h
}

// HandleFor returns the handle created for raw, nil if none was.
func (e *Engine) HandleFor(raw string) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.handles {
		if h.url.String() == raw {
			return h
		}
	}
	return nil
}

// Emit pushes ev to the consumer.
func (e *Engine) Emit(ev transfer.Event) {
	e.events <- ev
}

// Progress scripts h to totalWritten/totalExpected and emits the matching
// event.
func (e *Engine) Progress(h *Handle, written, totalWritten, totalExpected int64) {
	h.SetFraction(float64(totalWritten) / float64(totalExpected))
	e.Emit(transfer.Event{
		Kind:          transfer.EventProgress,
		Handle:        h,
		Written:       written,
		TotalWritten:  totalWritten,
		TotalExpected: totalExpected,
	})
}

// Finish scripts h as completed with its payload at location, emitting the
// finished event followed by the terminal nil-error event.
func (e *Engine) Finish(h *Handle, location string) {
	h.SetState(transfer.StateCompleted)
	h.SetFraction(1)
	e.Emit(transfer.Event{Kind: transfer.EventFinished, Handle: h, Location: location})
	e.Emit(transfer.Event{Kind: transfer.EventDone, Handle: h})
}

// Fail scripts h as failed and emits the terminal event carrying err.
func (e *Engine) Fail(h *Handle, err error) {
	h.SetState(transfer.StateFailed)
	e.Emit(transfer.Event{Kind: transfer.EventDone, Handle: h, Err: err})
}

// Drain emits the all-pending-work-flushed signal.
func (e *Engine) Drain() {
	e.Emit(transfer.Event{Kind: transfer.EventDrained})
}

// Close ends the event stream.
func (e *Engine) Close() {
	close(e.events)
}

// Handle is a scriptable fake transfer. Suspend, Resume and Cancel move
// the reported state and count how often they were called.
type Handle struct {
	mu       sync.Mutex
	url      *url.URL
	state    transfer.State
	fraction float64
	suspends int
	resumes  int
	cancels  int
}

func (h *Handle) URL() *url.URL {
	return h.url
}

func (h *Handle) Fraction() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fraction
}

func (h *Handle) State() transfer.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Suspend() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.suspends++
	h.state = transfer.StateSuspended
}

func (h *Handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumes++
	h.state = transfer.StateRunning
}

func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancels++
	h.state = transfer.StateCancelling
}

// SetState scripts the reported state without counting as an instruction.
func (h *Handle) SetState(s transfer.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// SetFraction scripts the reported progress.
func (h *Handle) SetFraction(f float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fraction = f
}

func (h *Handle) SuspendCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suspends
}

func (h *Handle) ResumeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumes
}

func (h *Handle) CancelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels
}
