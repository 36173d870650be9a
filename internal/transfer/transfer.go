package transfer

import "net/url"

// State describes where a single transfer currently is in its lifecycle.
type State int

const (
	StateRunning State = iota
	StateSuspended
	StateCompleted
	StateCancelling
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateCancelling:
		return "cancelling"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle is one live transfer operation owned by an Engine.
//
// Suspend, Resume and Cancel are fire-and-forget instructions: their effects
// are observed later through the engine's event stream, never synchronously.
type Handle interface {
	// URL returns the original request URL. It is the key the service uses
	// to reassociate handles with resources after a restart.
	URL() *url.URL

	// Fraction reports how much of the payload has arrived, in [0, 1].
	Fraction() float64

	State() State

	Suspend()
	// Resume starts a freshly created handle or continues a suspended one.
	Resume()
	Cancel()
}

type EventKind int

const (
	// EventProgress reports bytes arriving for a handle.
	EventProgress EventKind = iota
	// EventFinished reports a payload ready at a temporary location.
	EventFinished
	// EventDone is the terminal signal for a handle. A nil Err is a pure
	// completion marker; a non-nil Err is the transfer's failure cause.
	EventDone
	// EventDrained signals that the engine has flushed all pending work
	// recovered from a previous run. Handle is nil.
	EventDrained
)

// Event is one delivery from the engine to its consumer. Events for the same
// handle arrive in the order the engine issued them; no ordering holds
// between different handles.
type Event struct {
	Kind   EventKind
	Handle Handle

	// Progress fields.
	Written       int64
	TotalWritten  int64
	TotalExpected int64

	// Finished: temporary path of the downloaded payload.
	Location string

	// Done: terminal error, if any.
	Err error
}

// Engine is the resumable transfer backend the download service drives.
//
// Transfer must never fail synchronously: a handle whose start goes wrong
// surfaces the problem later through an EventDone on the event stream.
type Engine interface {
	// Transfer creates a suspended handle for u. Call Resume to begin.
	Transfer(u *url.URL) Handle

	// Transfers lists every live handle, including those recovered from a
	// previous process. Used for restart reassociation.
	Transfers() []Handle

	// Events is the engine's outbound event stream. There is exactly one
	// consumer: the download service's run loop.
	Events() <-chan Event
}
