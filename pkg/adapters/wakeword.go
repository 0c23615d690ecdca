package adapters

import (
	"fmt"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// WakewordAdapter scans idle-state frames for the wake keyword. A hit opens a
// new utterance: it creates the correlation id the rest of the pipeline
// stamps onto every event.
type WakewordAdapter struct {
	stats
	eventBus *bus.EventBus
	machine  *statemachine.Machine
	tracker  *tracker.Tracker
	detector WakewordDetector

	running bool
}

func NewWakewordAdapter(eventBus *bus.EventBus, machine *statemachine.Machine, tr *tracker.Tracker, detector WakewordDetector) *WakewordAdapter {
	return &WakewordAdapter{eventBus: eventBus, machine: machine, tracker: tr, detector: detector}
}

func (a *WakewordAdapter) Name() string { return "wakeword_adapter" }

func (a *WakewordAdapter) Initialize() error {
	if a.detector == nil {
		return fmt.Errorf("wakeword_adapter: no detector configured")
	}
	a.eventBus.RegisterFrameConsumer(a.onFrame)
	return nil
}

func (a *WakewordAdapter) Start() error {
	a.running = true
	return nil
}

func (a *WakewordAdapter) Stop() {
	a.running = false
}

func (a *WakewordAdapter) Cleanup() {
	a.detector.Reset()
}

func (a *WakewordAdapter) onFrame(frame bus.AudioFrame) {
	if !a.running || a.machine.Current() != statemachine.Idle {
		return
	}
	a.countProcessed()

	hit, ok := a.detector.Detect(frame.Data)
	if !ok {
		return
	}

	msgID := a.tracker.CreateMessageID()
	a.tracker.AddTrace(msgID, a.Name(), "wakeword_detected", nil,
		map[string]any{"keyword": hit.Keyword, "confidence": hit.Confidence})

	logger.InfoCF("wakeword", "Wakeword detected",
		map[string]any{"keyword": hit.Keyword, "confidence": hit.Confidence, "msg_id": msgID})

	a.machine.HandleEvent(statemachine.WakewordTriggered, "wakeword "+hit.Keyword)
	a.eventBus.Publish(bus.NewEvent(bus.WakewordDetected, a.Name(),
		bus.WakewordHit{Keyword: hit.Keyword, Confidence: hit.Confidence}).WithMessageID(msgID))
	a.detector.Reset()
}

func (a *WakewordAdapter) HandleEvent(bus.Event) {}

func (a *WakewordAdapter) Running() bool { return a.running }

func (a *WakewordAdapter) Statistics() map[string]any { return a.snapshot() }
