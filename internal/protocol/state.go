package protocol

import (
	"fmt"
	"slices"
	"sync"

	"github.com/wagiedev/sidecar-go/internal/errors"
)

// State is the connection state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed
}

// transitions lists the allowed moves out of each state.
var transitions = map[State][]State{
	StateIdle:       {StateConnecting, StateClosing, StateErrored},
	StateConnecting: {StateConnected, StateClosing, StateErrored},
	StateConnected:  {StateClosing, StateErrored},
	StateErrored:    {StateClosing},
	StateClosing:    {StateClosed},
}

// stateManager manages thread-safe state transitions.
type stateManager struct {
	mu    sync.RWMutex
	state State
}

func newStateManager() *stateManager {
	return &stateManager{state: StateIdle}
}

func (m *stateManager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// Transition moves from one of the states in from to next.
func (m *stateManager) Transition(next State, from ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(from) > 0 && !slices.Contains(from, m.state) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidState, m.state, next)
	}

	if !slices.Contains(transitions[m.state], next) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidState, m.state, next)
	}

	m.state = next

	return nil
}

// SetErrored moves any non-terminal, non-closing state to Errored.
// It reports whether the transition happened.
func (m *stateManager) SetErrored() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(transitions[m.state], StateErrored) {
		return false
	}

	m.state = StateErrored

	return true
}

// BeginClose moves to Closing. It reports false if the session is already
// closing or closed.
func (m *stateManager) BeginClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(transitions[m.state], StateClosing) {
		return false
	}

	m.state = StateClosing

	return true
}

func (m *stateManager) SetClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateClosed
}
