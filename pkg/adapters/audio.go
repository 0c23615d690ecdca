package adapters

import (
	"context"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
)

// AudioAdapter owns the capture loop and feeds frames to the bus's fast path.
type AudioAdapter struct {
	stats
	eventBus *bus.EventBus
	recorder Recorder
	cfg      config.AudioConfig

	cancel  context.CancelFunc
	running bool
}

func NewAudioAdapter(eventBus *bus.EventBus, recorder Recorder, cfg config.AudioConfig) *AudioAdapter {
	return &AudioAdapter{eventBus: eventBus, recorder: recorder, cfg: cfg}
}

func (a *AudioAdapter) Name() string { return "audio_adapter" }

func (a *AudioAdapter) Initialize() error {
	if a.recorder == nil {
		return fmt.Errorf("audio_adapter: no recorder configured")
	}
	return nil
}

func (a *AudioAdapter) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true

	go func() {
		err := a.recorder.StartCapture(ctx, func(data []byte, sampleRate int) {
			a.countProcessed()
			a.eventBus.PublishFrame(bus.AudioFrame{Data: data, SampleRate: sampleRate})
		})
		if err != nil && ctx.Err() == nil {
			a.countError()
			logger.ErrorCF("audio", "Capture loop failed", map[string]any{"error": err.Error()})
			a.eventBus.Publish(bus.NewEvent(bus.SystemError, a.Name(),
				bus.ErrorInfo{Component: a.Name(), Err: err.Error()}))
		}
	}()

	logger.InfoCF("audio", "Capture started",
		map[string]any{"sample_rate": a.cfg.SampleRate, "chunk_size": a.cfg.ChunkSize})
	return nil
}

func (a *AudioAdapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.running = false
}

func (a *AudioAdapter) Cleanup() {}

func (a *AudioAdapter) HandleEvent(bus.Event) {}

func (a *AudioAdapter) Running() bool { return a.running }

func (a *AudioAdapter) Statistics() map[string]any { return a.snapshot() }
