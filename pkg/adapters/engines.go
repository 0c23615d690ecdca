package adapters

import "context"

// The pipeline's external collaborators. Real engines (capture driver,
// wakeword model, webrtc VAD, ASR, TTS) live behind these interfaces; tests
// plug in fakes.

// FrameSink receives captured audio frames.
type FrameSink func(data []byte, sampleRate int)

// Recorder is the audio capture driver.
type Recorder interface {
	// StartCapture begins delivering frames to sink until the context is
	// cancelled.
	StartCapture(ctx context.Context, sink FrameSink) error
}

// WakewordHit is a detector hit.
type WakewordHit struct {
	Keyword    string
	Confidence float64
}

// WakewordDetector scans frames for the wake keyword.
type WakewordDetector interface {
	Detect(frame []byte) (WakewordHit, bool)
	Reset()
}

// VADEventKind is the detector's boundary signal for one frame.
type VADEventKind int

const (
	VADNone VADEventKind = iota
	VADSpeechStart
	VADSpeechEnd
)

// VADResult is the outcome of feeding one correctly-sized frame.
type VADResult struct {
	Event      VADEventKind
	IsSpeech   bool
	DurationMS float64
}

// VADEngine consumes fixed-size frames and reports speech boundaries.
type VADEngine interface {
	// FrameBytes is the exact frame size the engine requires.
	FrameBytes() int
	ProcessFrame(frame []byte) VADResult
	Reset()
}

// ASRResult is a recognition outcome.
type ASRResult struct {
	Text       string
	Confidence float64
}

// ASREngine recognizes a captured utterance.
type ASREngine interface {
	Recognize(ctx context.Context, audio []byte, sampleRate int) (ASRResult, error)
}

// Synthesizer drives the speaker.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}
