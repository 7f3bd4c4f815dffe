package mqttclient

import (
	"sync"
	"time"
)

// State is the link state reported by Status.
type State string

// Link states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateRejected     State = "rejected"
	StateLost         State = "lost"
	StateClosed       State = "closed"
)

// Status is a snapshot of the link state.
type Status struct {
	State State

	// Err explains the transition into State, if it was caused by a failure.
	Err error

	// Since is when State was entered.
	Since time.Time
}

// Connected reports whether the broker has accepted the connection.
func (s Status) Connected() bool {
	return s.State == StateConnected
}

// statusTracker holds the current Status and the change callback.
type statusTracker struct {
	mu       sync.Mutex
	current  Status
	onChange func(Status)
}

// set records a transition and returns the callback to run outside the lock.
// Nothing changes once the tracker reaches StateClosed.
func (t *statusTracker) set(state State, err error) (Status, func(Status), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.State == StateClosed {
		return t.current, nil, false
	}
	t.current = Status{State: state, Err: err, Since: time.Now()}
	return t.current, t.onChange, true
}

func (t *statusTracker) get() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *statusTracker) setCallback(fn func(Status)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}
