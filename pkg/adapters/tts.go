package adapters

import (
	"context"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// TTSAdapter drives the speaker and finalizes the utterance trace. With a nil
// synthesizer (evaluation mode) playback is skipped and the trace is still
// finalized.
type TTSAdapter struct {
	stats
	eventBus *bus.EventBus
	tracker  *tracker.Tracker
	synth    Synthesizer

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	sub     bus.Subscription
}

func NewTTSAdapter(eventBus *bus.EventBus, tr *tracker.Tracker, synth Synthesizer) *TTSAdapter {
	return &TTSAdapter{eventBus: eventBus, tracker: tr, synth: synth}
}

func (a *TTSAdapter) Name() string { return "tts_adapter" }

func (a *TTSAdapter) Initialize() error {
	a.sub = a.eventBus.SubscribeAsync(bus.TTSSpeakRequest, a.HandleEvent)
	return nil
}

func (a *TTSAdapter) Start() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.running = true
	return nil
}

func (a *TTSAdapter) Stop() {
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *TTSAdapter) Cleanup() {
	a.eventBus.Unsubscribe(a.sub)
}

func (a *TTSAdapter) HandleEvent(ev bus.Event) {
	if ev.Kind != bus.TTSSpeakRequest || !a.running {
		return
	}
	req, ok := ev.Payload.(bus.SpeakRequest)
	if !ok || req.Text == "" {
		return
	}
	a.countProcessed()

	a.eventBus.Publish(bus.NewEvent(bus.TTSSpeakStart, a.Name(), req).WithMessageID(ev.MessageID))

	if a.synth != nil {
		if err := a.synth.Speak(a.ctx, req.Text); err != nil {
			a.countError()
			logger.ErrorCF("tts", "Playback failed", map[string]any{"error": err.Error()})
		}
	}

	a.tracker.AddTrace(ev.MessageID, a.Name(), "tts_speak_end", nil,
		map[string]any{"text_length": len(req.Text)})
	a.eventBus.Publish(bus.NewEvent(bus.TTSSpeakEnd, a.Name(), req).WithMessageID(ev.MessageID))
}

func (a *TTSAdapter) Running() bool { return a.running }

func (a *TTSAdapter) Statistics() map[string]any { return a.snapshot() }
