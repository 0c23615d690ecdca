package adapters

import (
	"context"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/memory"
	"github.com/brookwillow/kiwi/pkg/orchestrator"
	"github.com/brookwillow/kiwi/pkg/session"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// DefaultUserID scopes sessions for the single-microphone pipeline.
const DefaultUserID = "default"

// OrchestratorAdapter turns recognized text into an agent dispatch request.
type OrchestratorAdapter struct {
	stats
	eventBus *bus.EventBus
	machine  *statemachine.Machine
	tracker  *tracker.Tracker
	orch     *orchestrator.Orchestrator
	sessions *session.Manager
	memory   *memory.Manager

	running bool
	cancel  context.CancelFunc
	ctx     context.Context
	sub     bus.Subscription
}

func NewOrchestratorAdapter(
	eventBus *bus.EventBus,
	machine *statemachine.Machine,
	tr *tracker.Tracker,
	orch *orchestrator.Orchestrator,
	sessions *session.Manager,
	mem *memory.Manager,
) *OrchestratorAdapter {
	return &OrchestratorAdapter{
		eventBus: eventBus,
		machine:  machine,
		tracker:  tr,
		orch:     orch,
		sessions: sessions,
		memory:   mem,
	}
}

func (a *OrchestratorAdapter) Name() string { return "orchestrator_adapter" }

func (a *OrchestratorAdapter) Initialize() error {
	if a.orch == nil {
		return fmt.Errorf("orchestrator_adapter: no orchestrator configured")
	}
	a.sub = a.eventBus.SubscribeAsync(bus.ASRRecognitionSuccess, a.HandleEvent)
	return nil
}

func (a *OrchestratorAdapter) Start() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.running = true
	return nil
}

func (a *OrchestratorAdapter) Stop() {
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *OrchestratorAdapter) Cleanup() {
	a.eventBus.Unsubscribe(a.sub)
}

func (a *OrchestratorAdapter) HandleEvent(ev bus.Event) {
	if ev.Kind != bus.ASRRecognitionSuccess || !a.running {
		return
	}
	recognition, ok := ev.Payload.(bus.Recognition)
	if !ok || recognition.Text == "" {
		return
	}
	a.countProcessed()

	input := orchestrator.Input{
		Query:  recognition.Text,
		UserID: DefaultUserID,
	}
	if active, ok := a.sessions.Active(DefaultUserID); ok {
		input.ActiveSession = &active
	}
	if a.memory != nil {
		input.Recent = a.memory.Recent(5)
		input.LongTerm = a.memory.LongTerm()
	}

	decision := a.orch.Decide(a.ctx, input)

	a.tracker.AddTrace(ev.MessageID, a.Name(), "orchestrator_decision",
		map[string]any{"query": recognition.Text},
		map[string]any{
			"selected_agent": decision.SelectedAgent,
			"confidence":     decision.Confidence,
			"reasoning":      decision.Reasoning,
			"resume":         decision.Resume,
		})

	logger.InfoCF("orchestrator", "Agent selected",
		map[string]any{"agent": decision.SelectedAgent, "resume": decision.Resume,
			"confidence": decision.Confidence})

	a.machine.HandleEvent(statemachine.OrchestratorDecided, "agent "+decision.SelectedAgent)

	dispatch := bus.NewEvent(bus.AgentDispatchRequest, a.Name(), bus.DispatchRequest{
		Agent:      decision.SelectedAgent,
		Query:      recognition.Text,
		UserID:     input.UserID,
		Parameters: decision.Parameters,
	}).WithMessageID(ev.MessageID)

	if decision.Resume && input.ActiveSession != nil {
		dispatch = dispatch.WithSession(input.ActiveSession.ID, bus.SessionResume)
	} else {
		dispatch = dispatch.WithSession("", bus.SessionNew)
	}
	a.eventBus.Publish(dispatch)
}

func (a *OrchestratorAdapter) Running() bool { return a.running }

func (a *OrchestratorAdapter) Statistics() map[string]any { return a.snapshot() }
