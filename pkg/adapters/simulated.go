package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brookwillow/kiwi/pkg/config"
)

// Simulated engine drivers. Real capture, wakeword, VAD, ASR and TTS engines
// live outside this repository; these simulators speak the same interfaces so
// the whole pipeline runs end-to-end from the CLI. Utterances injected with
// Say travel the full frame path: a wake-marked frame, then the text packed
// into speech-marked frames, then silence.
const (
	simWakeMarker   = 0xF1
	simSpeechMarker = 0xF2
)

// SimulatedMicrophone paces frames like a capture driver: silence by default,
// queued utterance frames after Say.
type SimulatedMicrophone struct {
	sampleRate      int
	frameBytes      int
	minSpeechFrames int

	mu      sync.Mutex
	pending [][]byte
}

// NewSimulatedMicrophone emits frames of exactly frameBytes so the VAD framing
// stays aligned with the markers. minSpeechFrames pads short utterances past
// the minimum speech duration.
func NewSimulatedMicrophone(cfg config.AudioConfig, frameBytes, minSpeechFrames int) *SimulatedMicrophone {
	if minSpeechFrames < 1 {
		minSpeechFrames = 1
	}
	return &SimulatedMicrophone{
		sampleRate:      cfg.SampleRate,
		frameBytes:      frameBytes,
		minSpeechFrames: minSpeechFrames,
	}
}

// Say queues one utterance: a wake frame, the text chunked into speech
// frames, and padding speech frames up to the minimum duration.
func (m *SimulatedMicrophone) Say(text string) {
	frames := make([][]byte, 0, m.minSpeechFrames+1)

	wake := make([]byte, m.frameBytes)
	wake[0] = simWakeMarker
	frames = append(frames, wake)

	payload := []byte(text)
	chunk := m.frameBytes - 1
	for len(payload) > 0 {
		n := min(chunk, len(payload))
		frame := make([]byte, m.frameBytes)
		frame[0] = simSpeechMarker
		copy(frame[1:], payload[:n])
		frames = append(frames, frame)
		payload = payload[n:]
	}
	for len(frames)-1 < m.minSpeechFrames {
		frame := make([]byte, m.frameBytes)
		frame[0] = simSpeechMarker
		frames = append(frames, frame)
	}

	m.mu.Lock()
	m.pending = append(m.pending, frames...)
	m.mu.Unlock()
}

func (m *SimulatedMicrophone) frameDuration() time.Duration {
	samples := m.frameBytes / 2 // 16-bit mono
	return time.Duration(samples) * time.Second / time.Duration(m.sampleRate)
}

// StartCapture delivers one frame per frame interval until the context ends.
func (m *SimulatedMicrophone) StartCapture(ctx context.Context, sink FrameSink) error {
	ticker := time.NewTicker(m.frameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		m.mu.Lock()
		var frame []byte
		if len(m.pending) > 0 {
			frame = m.pending[0]
			m.pending = m.pending[1:]
		}
		m.mu.Unlock()

		if frame == nil {
			frame = make([]byte, m.frameBytes)
		}
		sink(frame, m.sampleRate)
	}
}

// SimulatedWakeword fires on wake-marked frames.
type SimulatedWakeword struct {
	keyword string
}

func NewSimulatedWakeword(cfg config.WakewordConfig) *SimulatedWakeword {
	keyword := cfg.Keyword
	if keyword == "" {
		keyword = "kiwi"
	}
	return &SimulatedWakeword{keyword: keyword}
}

func (d *SimulatedWakeword) Detect(frame []byte) (WakewordHit, bool) {
	if len(frame) > 0 && frame[0] == simWakeMarker {
		return WakewordHit{Keyword: d.keyword, Confidence: 0.99}, true
	}
	return WakewordHit{}, false
}

func (d *SimulatedWakeword) Reset() {}

// SimulatedVAD marks boundaries by the speech marker byte: the first speech
// frame starts an utterance, a run of silence frames covering the silence
// timeout ends it.
type SimulatedVAD struct {
	frameBytes      int
	frameDurationMS int
	silenceFrames   int

	inSpeech     bool
	speechFrames int
	silenceRun   int
}

func NewSimulatedVAD(audio config.AudioConfig, cfg config.VADConfig) *SimulatedVAD {
	frameBytes := audio.SampleRate * 2 * cfg.FrameDurationMS / 1000
	silenceFrames := cfg.SilenceTimeoutMS / cfg.FrameDurationMS
	if silenceFrames < 1 {
		silenceFrames = 1
	}
	return &SimulatedVAD{
		frameBytes:      frameBytes,
		frameDurationMS: cfg.FrameDurationMS,
		silenceFrames:   silenceFrames,
	}
}

func (v *SimulatedVAD) FrameBytes() int { return v.frameBytes }

func (v *SimulatedVAD) ProcessFrame(frame []byte) VADResult {
	speech := len(frame) > 0 && frame[0] == simSpeechMarker

	if speech {
		v.silenceRun = 0
		v.speechFrames++
		if !v.inSpeech {
			v.inSpeech = true
			return VADResult{Event: VADSpeechStart, IsSpeech: true}
		}
		return VADResult{IsSpeech: true}
	}

	if v.inSpeech {
		v.silenceRun++
		if v.silenceRun >= v.silenceFrames {
			duration := float64(v.speechFrames * v.frameDurationMS)
			v.inSpeech = false
			v.speechFrames = 0
			v.silenceRun = 0
			return VADResult{Event: VADSpeechEnd, DurationMS: duration}
		}
	}
	return VADResult{}
}

func (v *SimulatedVAD) Reset() {
	v.inSpeech = false
	v.speechFrames = 0
	v.silenceRun = 0
}

// SimulatedASR decodes the text packed into the speech-marked frames of the
// captured blob.
type SimulatedASR struct {
	frameBytes int
}

func NewSimulatedASR(frameBytes int) *SimulatedASR {
	return &SimulatedASR{frameBytes: frameBytes}
}

func (a *SimulatedASR) Recognize(_ context.Context, audio []byte, _ int) (ASRResult, error) {
	var text []byte
	for i := 0; i+a.frameBytes <= len(audio); i += a.frameBytes {
		frame := audio[i : i+a.frameBytes]
		if frame[0] != simSpeechMarker {
			continue
		}
		text = append(text, bytes.TrimRight(frame[1:], "\x00")...)
	}
	return ASRResult{
		Text:       strings.TrimSpace(string(text)),
		Confidence: 1.0,
	}, nil
}

// ConsoleSynthesizer "plays" speech by printing it, standing in for the
// external speaker driver.
type ConsoleSynthesizer struct {
	w io.Writer
}

func NewConsoleSynthesizer() *ConsoleSynthesizer {
	return &ConsoleSynthesizer{w: os.Stdout}
}

func (s *ConsoleSynthesizer) Speak(_ context.Context, text string) error {
	_, err := fmt.Fprintf(s.w, "assistant> %s\n", text)
	return err
}
