package engine

import "sync"

// SessionState is the orchestrator's lifecycle phase for one trading session.
type SessionState string

const (
	StateStarting         SessionState = "STARTING"
	StateValidatingConfig SessionState = "VALIDATING_CONFIG"
	StateWaitingForOpen   SessionState = "WAITING_FOR_OPEN"
	StateRunning          SessionState = "RUNNING"
	StateShuttingDown     SessionState = "SHUTTING_DOWN"
	StateStopped          SessionState = "STOPPED"
	StateError            SessionState = "ERROR"
)

// Terminal reports whether the session can no longer leave this state.
func (s SessionState) Terminal() bool {
	return s == StateStopped || s == StateError
}

// session holds the current state behind a lock so the status API can read
// it while the event loop advances it.
type session struct {
	mu    sync.RWMutex
	state SessionState
}

func newSession() *session {
	return &session{state: StateStarting}
}

func (s *session) get() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// set advances the state machine. Terminal states absorb all transitions.
func (s *session) set(next SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = next
	return true
}
