package bus

import "time"

// Kind identifies an event family. Consumers select on Kind and can rely on
// the payload type documented next to each constant.
type Kind string

const (
	// System control.
	SystemStart Kind = "system_start"
	SystemStop  Kind = "system_stop"
	SystemError Kind = "system_error" // payload: ErrorInfo

	// Audio capture. Frames bypass the generic dispatch path, see
	// RegisterFrameConsumer.
	AudioFrameReady Kind = "audio_frame_ready" // payload: AudioFrame

	// Wakeword.
	WakewordDetected Kind = "wakeword_detected" // payload: WakewordHit

	// VAD boundaries.
	VADSpeechStart Kind = "vad_speech_start" // payload: SpeechBoundary
	VADSpeechEnd   Kind = "vad_speech_end"   // payload: SpeechBoundary

	// ASR.
	ASRRecognitionStart   Kind = "asr_recognition_start"   // payload: nil
	ASRRecognitionSuccess Kind = "asr_recognition_success" // payload: Recognition
	ASRRecognitionFailed  Kind = "asr_recognition_failed"  // payload: Recognition

	// State machine.
	StateChanged Kind = "state_changed" // payload: StateChange

	// Orchestration and agents.
	AgentDispatchRequest Kind = "agent_dispatch_request" // payload: DispatchRequest
	AgentResponse        Kind = "agent_response"         // payload: AgentResult

	// Sessions.
	SessionExpired Kind = "session_expired" // payload: SessionNotice

	// TTS.
	TTSSpeakRequest Kind = "tts_speak_request" // payload: SpeakRequest
	TTSSpeakStart   Kind = "tts_speak_start"   // payload: SpeakRequest
	TTSSpeakEnd     Kind = "tts_speak_end"     // payload: SpeakRequest
)

// SessionAction distinguishes how a session-aware event relates to the
// session it names.
type SessionAction string

const (
	SessionNew      SessionAction = "new"
	SessionResume   SessionAction = "resume"
	SessionComplete SessionAction = "complete"
)

// Event is the bus payload. MessageID correlates every event derived from one
// utterance; SessionID/SessionAction are set only on session-aware events.
type Event struct {
	Kind          Kind
	Source        string
	Timestamp     time.Time
	MessageID     string
	SessionID     string
	SessionAction SessionAction
	Payload       any
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind Kind, source string, payload any) Event {
	return Event{
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// WithMessageID returns a copy of the event carrying the correlation id.
func (e Event) WithMessageID(id string) Event {
	e.MessageID = id
	return e
}

// WithSession returns a copy of the event carrying session identity.
func (e Event) WithSession(sessionID string, action SessionAction) Event {
	e.SessionID = sessionID
	e.SessionAction = action
	return e
}

// AudioFrame is one capture chunk.
type AudioFrame struct {
	Data       []byte
	SampleRate int
}

// WakewordHit reports a detector hit.
type WakewordHit struct {
	Keyword    string
	Confidence float64
}

// SpeechBoundary marks a VAD start or end. Audio is set only on speech_end
// and carries the full captured utterance including the pre-speech buffer.
type SpeechBoundary struct {
	Audio      []byte
	DurationMS float64
}

// Recognition is the outcome of one ASR pass.
type Recognition struct {
	Text       string
	Confidence float64
	LatencyMS  float64
	Err        string
}

// StateChange reports a pipeline state transition.
type StateChange struct {
	From   string
	To     string
	Reason string
}

// DispatchRequest asks the agent adapter to run an agent for an utterance.
type DispatchRequest struct {
	Agent      string
	Query      string
	UserID     string
	Parameters map[string]any
}

// AgentResult is the agent adapter's published outcome.
type AgentResult struct {
	Agent   string
	Query   string
	Status  string
	Message string
	Prompt  string
	Data    map[string]any
}

// SessionNotice reports a session lifecycle event outside the normal flow.
type SessionNotice struct {
	SessionID string
	Agent     string
	UserID    string
	Reason    string
}

// SpeakRequest asks the TTS adapter to speak.
type SpeakRequest struct {
	Text string
}

// ErrorInfo describes a component failure surfaced on the bus.
type ErrorInfo struct {
	Component string
	Err       string
}
