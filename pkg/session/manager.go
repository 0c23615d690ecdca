package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brookwillow/kiwi/pkg/logger"
)

var (
	// ErrConflict is returned when the creation rules refuse a new session.
	ErrConflict = errors.New("session conflict")
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrNotResumable is returned when Resume targets a session that is
	// neither the active waiting session nor the top of the stack.
	ErrNotResumable = errors.New("session not resumable")
)

// userQueue is one user's stack of paused sessions plus the single active
// session. All mutations for a user happen under its mutex.
type userQueue struct {
	mu     sync.Mutex
	active string   // session id, "" when the user has no active session
	stack  []string // paused sessions in push order; resume takes the top
}

// Manager owns agent session lifecycles: creation with priority-based
// preemption, waiting-for-input, stack-style resume, completion, and TTL
// expiry. Mutations are serialized per user id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	users    map[string]*userQueue
	ttl      time.Duration
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		users:    make(map[string]*userQueue),
		ttl:      ttl,
	}
}

func (m *Manager) user(userID string) *userQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.users[userID]
	if !ok {
		q = &userQueue{}
		m.users[userID] = q
	}
	return q
}

func (m *Manager) lookup(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Create applies the creation decision rule and returns the new session, or
// ErrConflict when the existing session wins:
//
//   - existing is waiting_input: stack it (paused) and create the new one
//   - new priority > existing and existing is interruptible: preempt
//   - otherwise: refuse
func (m *Manager) Create(agentName, userID string, priority int, interruptible bool) (Session, error) {
	q := m.user(userID)
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active != "" {
		existing := m.lookup(q.active)
		switch {
		case existing == nil:
			q.active = ""
		case existing.State == WaitingInput:
			existing.State = Paused
			existing.touch()
			q.stack = append(q.stack, existing.ID)
			q.active = ""
			logger.InfoCF("session", "Stacked waiting session",
				map[string]any{"session_id": existing.ID, "agent": existing.AgentName})
		case priority > existing.Priority && existing.Interruptible:
			existing.State = Paused
			existing.touch()
			q.stack = append(q.stack, existing.ID)
			q.active = ""
			logger.InfoCF("session", "Preempted session",
				map[string]any{"session_id": existing.ID, "agent": existing.AgentName,
					"existing_priority": existing.Priority, "new_priority": priority})
		case priority > existing.Priority:
			return Session{}, fmt.Errorf("%w: session %s is not interruptible", ErrConflict, existing.ID)
		default:
			return Session{}, fmt.Errorf("%w: active session %s has priority %d >= %d",
				ErrConflict, existing.ID, existing.Priority, priority)
		}
	}

	now := time.Now()
	s := &Session{
		ID:            uuid.NewString(),
		AgentName:     agentName,
		UserID:        userID,
		Priority:      priority,
		Interruptible: interruptible,
		State:         Running,
		Context:       make(map[string]any),
		CreatedAt:     now,
		LastActivity:  now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	q.active = s.ID

	logger.InfoCF("session", "Created session",
		map[string]any{"session_id": s.ID, "agent": agentName, "user": userID,
			"priority": priority, "interruptible": interruptible})
	return s.clone(), nil
}

// Active returns the user's active (running or waiting_input) session.
func (m *Manager) Active(userID string) (Session, bool) {
	q := m.user(userID)
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == "" {
		return Session{}, false
	}
	s := m.lookup(q.active)
	if s == nil {
		q.active = ""
		return Session{}, false
	}
	return s.clone(), true
}

// Get returns a copy of the session by id.
func (m *Manager) Get(id string) (Session, bool) {
	s := m.lookup(id)
	if s == nil {
		return Session{}, false
	}
	q := m.user(s.UserID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return s.clone(), true
}

// WaitForInput marks the session as waiting and records the prompt the agent
// asked with.
func (m *Manager) WaitForInput(id, prompt, expectedType string) error {
	s := m.lookup(id)
	if s == nil {
		return ErrNotFound
	}
	q := m.user(s.UserID)
	q.mu.Lock()
	defer q.mu.Unlock()

	s.State = WaitingInput
	s.Prompt = prompt
	s.ExpectedInputType = expectedType
	s.touch()
	return nil
}

// Resume hands a user answer to a waiting session, or revives the top paused
// session. A paused session below the top is rejected.
func (m *Manager) Resume(id, userInput string) (Session, error) {
	s := m.lookup(id)
	if s == nil {
		return Session{}, ErrNotFound
	}
	q := m.user(s.UserID)
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.active == id:
		// Answer to the active waiting session.
	case len(q.stack) > 0 && q.stack[len(q.stack)-1] == id && q.active == "":
		q.stack = q.stack[:len(q.stack)-1]
		q.active = id
	default:
		return Session{}, fmt.Errorf("%w: %s is not the active session or stack top", ErrNotResumable, id)
	}

	s.State = Running
	s.Prompt = ""
	s.ExpectedInputType = ""
	if userInput != "" {
		s.Context["last_user_input"] = userInput
	}
	s.touch()
	return s.clone(), nil
}

// SetContext merges values into the session context.
func (m *Manager) SetContext(id string, values map[string]any) error {
	s := m.lookup(id)
	if s == nil {
		return ErrNotFound
	}
	q := m.user(s.UserID)
	q.mu.Lock()
	defer q.mu.Unlock()

	for k, v := range values {
		s.Context[k] = v
	}
	s.touch()
	return nil
}

// Complete finishes the session. If the user's stack is non-empty the top
// session is popped and marked running; it is returned so the caller can
// re-invoke its agent with the stored context.
func (m *Manager) Complete(id string) (resumed Session, hasResumed bool, err error) {
	return m.finish(id, Completed)
}

// Fail finishes the session with the error state, resuming the stack top the
// same way Complete does.
func (m *Manager) Fail(id string) (resumed Session, hasResumed bool, err error) {
	return m.finish(id, Errored)
}

func (m *Manager) finish(id string, terminal State) (Session, bool, error) {
	s := m.lookup(id)
	if s == nil {
		return Session{}, false, ErrNotFound
	}
	q := m.user(s.UserID)
	q.mu.Lock()
	defer q.mu.Unlock()

	s.State = terminal
	s.touch()

	if q.active == id {
		q.active = ""
	} else {
		for i, sid := range q.stack {
			if sid == id {
				q.stack = append(q.stack[:i], q.stack[i+1:]...)
				break
			}
		}
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	logger.InfoCF("session", "Finished session",
		map[string]any{"session_id": id, "agent": s.AgentName, "state": string(terminal)})

	// Pop-and-resume the stack top.
	if q.active == "" && len(q.stack) > 0 {
		topID := q.stack[len(q.stack)-1]
		top := m.lookup(topID)
		if top != nil {
			q.stack = q.stack[:len(q.stack)-1]
			q.active = topID
			top.State = Running
			top.touch()
			logger.InfoCF("session", "Resumed stacked session",
				map[string]any{"session_id": topID, "agent": top.AgentName})
			return top.clone(), true, nil
		}
		q.stack = q.stack[:len(q.stack)-1]
	}
	return Session{}, false, nil
}

// Stack returns the user's paused sessions in push order.
func (m *Manager) Stack(userID string) []Session {
	q := m.user(userID)
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Session, 0, len(q.stack))
	for _, id := range q.stack {
		if s := m.lookup(id); s != nil {
			out = append(out, s.clone())
		}
	}
	return out
}

// Sweep expires sessions idle beyond the TTL, moving them to the error state
// and removing them from their user's bookkeeping. Expired sessions are
// returned so the caller can emit session_expired notices.
func (m *Manager) Sweep() []Session {
	if m.ttl <= 0 {
		return nil
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	cutoff := time.Now().Add(-m.ttl)
	var expired []Session
	for _, id := range ids {
		s := m.lookup(id)
		if s == nil {
			continue
		}
		q := m.user(s.UserID)
		q.mu.Lock()
		stale := s.LastActivity.Before(cutoff) && s.State != Completed && s.State != Errored
		q.mu.Unlock()
		if !stale {
			continue
		}

		if _, _, err := m.Fail(id); err == nil {
			cp := *s
			cp.State = Errored
			expired = append(expired, cp)
			logger.WarnCF("session", "Session expired",
				map[string]any{"session_id": id, "agent": s.AgentName})
		}
	}
	return expired
}

// Stats counts sessions by state plus the number of users the manager has
// seen (active_users counts every user with bookkeeping, stacked or not).
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byState := make(map[string]int)
	for _, s := range m.sessions {
		byState[string(s.State)]++
	}
	return map[string]any{
		"total_sessions": len(m.sessions),
		"active_users":   len(m.users),
		"by_state":       byState,
	}
}
