package adapters

import (
	"fmt"
	"sync"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// VADAdapter feeds frames to the boundary detector once a wakeword armed the
// pipeline. Raw capture chunks are re-framed to the detector's required size;
// frames preceding speech_start within the pre-speech window are prepended to
// the captured utterance.
type VADAdapter struct {
	stats
	eventBus *bus.EventBus
	machine  *statemachine.Machine
	tracker  *tracker.Tracker
	engine   VADEngine
	cfg      config.VADConfig

	mu        sync.Mutex
	running   bool
	msgID     string // correlation id of the in-flight utterance
	pending   []byte // capture bytes not yet framed for the engine
	preSpeech []byte // rolling buffer of pre-speech audio
	captured  []byte // speech audio since speech_start
	inSpeech  bool
	sub       bus.Subscription
}

func NewVADAdapter(eventBus *bus.EventBus, machine *statemachine.Machine, tr *tracker.Tracker, engine VADEngine, cfg config.VADConfig) *VADAdapter {
	return &VADAdapter{eventBus: eventBus, machine: machine, tracker: tr, engine: engine, cfg: cfg}
}

func (a *VADAdapter) Name() string { return "vad_adapter" }

func (a *VADAdapter) Initialize() error {
	if a.engine == nil {
		return fmt.Errorf("vad_adapter: no vad engine configured")
	}
	a.eventBus.RegisterFrameConsumer(a.onFrame)
	a.sub = a.eventBus.Subscribe(bus.WakewordDetected, a.HandleEvent)
	return nil
}

func (a *VADAdapter) Start() error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *VADAdapter) Stop() {
	a.mu.Lock()
	a.running = false
	a.reset()
	a.mu.Unlock()
}

func (a *VADAdapter) Cleanup() {
	a.eventBus.Unsubscribe(a.sub)
	a.engine.Reset()
}

// HandleEvent arms the adapter with the utterance's correlation id.
func (a *VADAdapter) HandleEvent(ev bus.Event) {
	if ev.Kind != bus.WakewordDetected {
		return
	}
	a.mu.Lock()
	a.msgID = ev.MessageID
	a.reset()
	a.mu.Unlock()
}

func (a *VADAdapter) reset() {
	a.pending = nil
	a.preSpeech = nil
	a.captured = nil
	a.inSpeech = false
	a.engine.Reset()
}

// maxPreSpeechBytes derives the pre-speech window size for 16-bit mono audio.
func (a *VADAdapter) maxPreSpeechBytes(sampleRate int) int {
	return sampleRate * 2 * a.cfg.PreSpeechBufferMS / 1000
}

func (a *VADAdapter) onFrame(frame bus.AudioFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	state := a.machine.Current()
	if state != statemachine.WakeDetected && state != statemachine.Listening {
		return
	}
	a.countProcessed()

	a.pending = append(a.pending, frame.Data...)
	frameBytes := a.engine.FrameBytes()

	for len(a.pending) >= frameBytes {
		chunk := a.pending[:frameBytes]
		a.pending = a.pending[frameBytes:]
		a.processChunk(chunk, frame.SampleRate)
	}
}

func (a *VADAdapter) processChunk(chunk []byte, sampleRate int) {
	result := a.engine.ProcessFrame(chunk)

	if a.inSpeech {
		a.captured = append(a.captured, chunk...)
	} else {
		a.preSpeech = append(a.preSpeech, chunk...)
		if max := a.maxPreSpeechBytes(sampleRate); len(a.preSpeech) > max {
			a.preSpeech = a.preSpeech[len(a.preSpeech)-max:]
		}
	}

	switch result.Event {
	case VADSpeechStart:
		a.inSpeech = true
		a.captured = append([]byte{}, a.preSpeech...)
		a.preSpeech = nil

		a.tracker.AddTrace(a.msgID, a.Name(), "vad_speech_start", nil, nil)
		a.machine.HandleEvent(statemachine.SpeechStart, "vad speech start")
		a.eventBus.Publish(bus.NewEvent(bus.VADSpeechStart, a.Name(),
			bus.SpeechBoundary{}).WithMessageID(a.msgID))

	case VADSpeechEnd:
		if !a.inSpeech {
			return
		}
		a.inSpeech = false

		if result.DurationMS < float64(a.cfg.MinSpeechDurationMS) {
			logger.DebugCF("vad", "Speech too short, discarded",
				map[string]any{"duration_ms": result.DurationMS})
			a.captured = nil
			return
		}

		audio := a.captured
		a.captured = nil

		a.tracker.AddTrace(a.msgID, a.Name(), "vad_speech_end", nil,
			map[string]any{"bytes": len(audio), "duration_ms": result.DurationMS})
		a.machine.HandleEvent(statemachine.SpeechEnd, "vad speech end")
		a.eventBus.Publish(bus.NewEvent(bus.VADSpeechEnd, a.Name(),
			bus.SpeechBoundary{Audio: audio, DurationMS: result.DurationMS}).WithMessageID(a.msgID))
	}
}

func (a *VADAdapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *VADAdapter) Statistics() map[string]any { return a.snapshot() }
