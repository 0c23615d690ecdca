package statemachine

import (
	"sync"
	"time"

	"github.com/brookwillow/kiwi/pkg/logger"
)

// State is the single process-wide pipeline state.
type State string

const (
	Idle         State = "idle"
	WakeDetected State = "wake_detected"
	Listening    State = "listening"
	Recognizing  State = "recognizing"
	Deciding     State = "deciding"
	Executing    State = "executing"
	Error        State = "error"
)

// StateEvent drives transitions. Anything not in the table is rejected.
type StateEvent string

const (
	WakewordTriggered   StateEvent = "wakeword_triggered"
	SpeechStart         StateEvent = "speech_start"
	SpeechEnd           StateEvent = "speech_end"
	RecognitionStart    StateEvent = "recognition_start"
	RecognitionSuccess  StateEvent = "recognition_success"
	RecognitionFailed   StateEvent = "recognition_failed"
	OrchestratorDecided StateEvent = "orchestrator_decided"
	AgentCompleted      StateEvent = "agent_completed"
	ErrorOccurred       StateEvent = "error"
	Reset               StateEvent = "reset"
)

type transitionKey struct {
	from  State
	event StateEvent
}

var transitions = map[transitionKey]State{
	{Idle, WakewordTriggered}:          WakeDetected,
	{WakeDetected, SpeechStart}:        Listening,
	{Listening, SpeechEnd}:             Recognizing,
	{Listening, RecognitionStart}:      Recognizing,
	{Recognizing, RecognitionStart}:    Recognizing,
	{Recognizing, RecognitionSuccess}:  Deciding,
	{Recognizing, RecognitionFailed}:   Idle,
	{Deciding, OrchestratorDecided}:    Executing,
	{Executing, AgentCompleted}:        Idle,
	{Error, Reset}:                     Idle,
	{Idle, Reset}:                      Idle,
	{WakeDetected, Reset}:              Idle,
	{Listening, Reset}:                 Idle,
	{Recognizing, Reset}:               Idle,
	{Deciding, Reset}:                  Idle,
	{Executing, Reset}:                 Idle,
}

// Transition is the outcome of one HandleEvent call.
type Transition struct {
	Accepted bool
	From     State
	To       State
	Event    StateEvent
	Reason   string
}

// ChangeListener observes accepted transitions.
type ChangeListener func(Transition)

// Machine holds the pipeline state and applies the transition table. Unknown
// transitions log a warning and keep the current state.
type Machine struct {
	mu        sync.Mutex
	state     State
	enteredAt time.Time
	listeners []ChangeListener

	// wakeTimeout bounds how long the pipeline may stay in wake_detected or
	// listening before falling back to idle. Zero disables the timeout.
	wakeTimeout time.Duration
}

func New(wakeTimeout time.Duration) *Machine {
	return &Machine{
		state:       Idle,
		enteredAt:   time.Now(),
		wakeTimeout: wakeTimeout,
	}
}

// OnChange registers a listener invoked (outside the machine lock) for every
// accepted transition.
func (m *Machine) OnChange(fn ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Current returns the current pipeline state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HandleEvent applies one state event. The error event is accepted from any
// state.
func (m *Machine) HandleEvent(event StateEvent, reason string) Transition {
	m.mu.Lock()

	from := m.state
	var to State
	var ok bool
	if event == ErrorOccurred {
		to, ok = Error, true
	} else {
		to, ok = transitions[transitionKey{from, event}]
	}

	if !ok {
		m.mu.Unlock()
		logger.WarnCF("state", "Invalid transition ignored",
			map[string]any{"state": string(from), "event": string(event)})
		return Transition{Accepted: false, From: from, To: from, Event: event, Reason: reason}
	}

	m.state = to
	m.enteredAt = time.Now()
	listeners := make([]ChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	tr := Transition{Accepted: true, From: from, To: to, Event: event, Reason: reason}
	if from != to {
		logger.DebugCF("state", "Transition",
			map[string]any{"from": string(from), "to": string(to), "event": string(event)})
	}
	for _, fn := range listeners {
		fn(tr)
	}
	return tr
}

// CheckTimeout returns the pipeline to idle when it has stayed in
// wake_detected or listening (no speech yet, or speech that never ended)
// longer than the configured window. Called periodically by the controller's
// maintenance loop.
func (m *Machine) CheckTimeout() bool {
	m.mu.Lock()
	expired := m.wakeTimeout > 0 &&
		(m.state == WakeDetected || m.state == Listening) &&
		time.Since(m.enteredAt) >= m.wakeTimeout
	m.mu.Unlock()

	if !expired {
		return false
	}
	m.HandleEvent(Reset, "wakeword timeout")
	return true
}
