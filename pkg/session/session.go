package session

import (
	"time"
)

// State is an agent session's lifecycle state.
type State string

const (
	Running      State = "running"
	WaitingInput State = "waiting_input"
	Paused       State = "paused"
	Completed    State = "completed"
	Errored      State = "error"
)

// Active reports whether the state counts against the one-active-session-per-
// user invariant.
func (s State) Active() bool {
	return s == Running || s == WaitingInput
}

// Session is one possibly-multi-turn agent interaction. Values handed out by
// the manager are copies; all mutation goes through manager methods.
type Session struct {
	ID            string
	AgentName     string
	UserID        string
	Priority      int // 0-100, higher preempts lower
	Interruptible bool
	State         State
	Context       map[string]any
	CreatedAt     time.Time
	LastActivity  time.Time

	// Set while the session waits for user input.
	Prompt            string
	ExpectedInputType string
}

func (s *Session) touch() {
	s.LastActivity = time.Now()
}

// clone returns a value copy with a copied context map.
func (s *Session) clone() Session {
	cp := *s
	cp.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		cp.Context[k] = v
	}
	return cp
}
