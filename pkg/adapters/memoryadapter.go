package adapters

import (
	"context"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/agent"
	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/memory"
)

// MemoryAdapter records completed conversation rounds into the memory
// subsystem on its own worker, so embedding and summarization latency never
// touches the response path.
type MemoryAdapter struct {
	stats
	eventBus *bus.EventBus
	memory   *memory.Manager

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	sub     bus.Subscription
}

func NewMemoryAdapter(eventBus *bus.EventBus, mem *memory.Manager) *MemoryAdapter {
	return &MemoryAdapter{eventBus: eventBus, memory: mem}
}

func (a *MemoryAdapter) Name() string { return "memory_adapter" }

func (a *MemoryAdapter) Initialize() error {
	if a.memory == nil {
		return fmt.Errorf("memory_adapter: no memory manager configured")
	}
	a.sub = a.eventBus.SubscribeAsync(bus.AgentResponse, a.HandleEvent)
	return nil
}

func (a *MemoryAdapter) Start() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.running = true
	return nil
}

func (a *MemoryAdapter) Stop() {
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *MemoryAdapter) Cleanup() {
	a.eventBus.Unsubscribe(a.sub)
}

func (a *MemoryAdapter) HandleEvent(ev bus.Event) {
	if ev.Kind != bus.AgentResponse || !a.running {
		return
	}
	result, ok := ev.Payload.(bus.AgentResult)
	if !ok {
		return
	}
	// Waiting turns are not rounds yet; the full round lands when the
	// session finishes.
	if result.Status == string(agent.StatusWaitingInput) {
		return
	}
	a.countProcessed()

	err := a.memory.Add(a.ctx, memory.ShortTermEntry{
		Query:    result.Query,
		Response: result.Message,
		Agent:    result.Agent,
		Success:  result.Status != string(agent.StatusError),
	})
	if err != nil {
		a.countError()
		logger.WarnCF("memory", "Failed to record conversation round",
			map[string]any{"error": err.Error()})
	}
}

func (a *MemoryAdapter) Running() bool { return a.running }

func (a *MemoryAdapter) Statistics() map[string]any { return a.snapshot() }
