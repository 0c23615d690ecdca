package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// ASRAdapter recognizes captured utterances on a single in-flight worker.
// A speech blob arriving while recognition is running is dropped with a busy
// trace entry.
type ASRAdapter struct {
	stats
	eventBus *bus.EventBus
	machine  *statemachine.Machine
	tracker  *tracker.Tracker
	engine   ASREngine
	cfg      config.AudioConfig

	mu       sync.Mutex
	running  bool
	inFlight bool
	cancel   context.CancelFunc
	sub      bus.Subscription
}

func NewASRAdapter(eventBus *bus.EventBus, machine *statemachine.Machine, tr *tracker.Tracker, engine ASREngine, cfg config.AudioConfig) *ASRAdapter {
	return &ASRAdapter{eventBus: eventBus, machine: machine, tracker: tr, engine: engine, cfg: cfg}
}

func (a *ASRAdapter) Name() string { return "asr_adapter" }

func (a *ASRAdapter) Initialize() error {
	if a.engine == nil {
		return fmt.Errorf("asr_adapter: no asr engine configured")
	}
	a.sub = a.eventBus.SubscribeAsync(bus.VADSpeechEnd, a.HandleEvent)
	return nil
}

func (a *ASRAdapter) Start() error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *ASRAdapter) Stop() {
	a.mu.Lock()
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
}

func (a *ASRAdapter) Cleanup() {
	a.eventBus.Unsubscribe(a.sub)
}

func (a *ASRAdapter) HandleEvent(ev bus.Event) {
	if ev.Kind != bus.VADSpeechEnd {
		return
	}

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	if a.inFlight {
		a.mu.Unlock()
		a.tracker.AddTrace(ev.MessageID, a.Name(), "busy", nil, nil)
		a.tracker.SetStatus(ev.MessageID, tracker.StatusBusy)
		logger.WarnCF("asr", "Recognition busy, utterance dropped",
			map[string]any{"msg_id": ev.MessageID})
		return
	}
	a.inFlight = true
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight = false
		a.cancel = nil
		a.mu.Unlock()
	}()

	a.recognize(ctx, ev)
}

func (a *ASRAdapter) recognize(ctx context.Context, ev bus.Event) {
	boundary, ok := ev.Payload.(bus.SpeechBoundary)
	if !ok {
		return
	}
	a.countProcessed()

	a.tracker.AddTrace(ev.MessageID, a.Name(), "asr_recognition_start", nil, nil)
	a.machine.HandleEvent(statemachine.RecognitionStart, "asr start")
	a.eventBus.Publish(bus.NewEvent(bus.ASRRecognitionStart, a.Name(), nil).WithMessageID(ev.MessageID))

	start := time.Now()
	result, err := a.engine.Recognize(ctx, boundary.Audio, a.cfg.SampleRate)
	latency := float64(time.Since(start).Microseconds()) / 1000
	a.observeLatency(latency)

	if err != nil || result.Text == "" {
		a.countError()
		errText := "empty recognition result"
		if err != nil {
			errText = err.Error()
		}
		a.tracker.AddTrace(ev.MessageID, a.Name(), "asr_recognition_failed", nil,
			map[string]any{"error": errText})
		a.tracker.SetStatus(ev.MessageID, tracker.StatusFailed)
		a.machine.HandleEvent(statemachine.RecognitionFailed, errText)
		a.eventBus.Publish(bus.NewEvent(bus.ASRRecognitionFailed, a.Name(),
			bus.Recognition{Err: errText, LatencyMS: latency}).WithMessageID(ev.MessageID))
		return
	}

	a.tracker.UpdateQuery(ev.MessageID, result.Text)
	a.tracker.AddTrace(ev.MessageID, a.Name(), "asr_recognition_success", nil,
		map[string]any{"text": result.Text, "confidence": result.Confidence, "latency_ms": latency})

	logger.InfoCF("asr", "Recognition succeeded",
		map[string]any{"text": result.Text, "latency_ms": latency})

	a.machine.HandleEvent(statemachine.RecognitionSuccess, "asr success")
	a.eventBus.Publish(bus.NewEvent(bus.ASRRecognitionSuccess, a.Name(), bus.Recognition{
		Text:       result.Text,
		Confidence: result.Confidence,
		LatencyMS:  latency,
	}).WithMessageID(ev.MessageID))
}

func (a *ASRAdapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *ASRAdapter) Statistics() map[string]any { return a.snapshot() }
