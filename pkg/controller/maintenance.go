package controller

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/memory"
	"github.com/brookwillow/kiwi/pkg/session"
	"github.com/brookwillow/kiwi/pkg/statemachine"
)

// Maintenance runs the periodic housekeeping on a cron schedule: session TTL
// sweeps, wakeword timeout checks, and vector store flushes.
type Maintenance struct {
	schedule string
	eventBus *bus.EventBus
	sessions *session.Manager
	machine  *statemachine.Machine
	memory   *memory.Manager

	stop chan struct{}
	done chan struct{}
}

func NewMaintenance(schedule string, eventBus *bus.EventBus, sessions *session.Manager, machine *statemachine.Machine, mem *memory.Manager) (*Maintenance, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid sweep schedule %q", schedule)
	}
	return &Maintenance{
		schedule: schedule,
		eventBus: eventBus,
		sessions: sessions,
		machine:  machine,
		memory:   mem,
	}, nil
}

func (m *Maintenance) Start() {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
}

func (m *Maintenance) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}

func (m *Maintenance) loop() {
	defer close(m.done)
	for {
		next, err := gronx.NextTick(m.schedule, false)
		if err != nil {
			logger.ErrorCF("maintenance", "Failed to compute next tick",
				map[string]any{"error": err.Error()})
			return
		}

		select {
		case <-m.stop:
			return
		case <-time.After(time.Until(next)):
		}
		m.runOnce()
	}
}

// runOnce does one maintenance pass. Exposed to tests via RunOnce.
func (m *Maintenance) runOnce() {
	for _, expired := range m.sessions.Sweep() {
		m.eventBus.Publish(bus.NewEvent(bus.SessionExpired, "maintenance", bus.SessionNotice{
			SessionID: expired.ID,
			Agent:     expired.AgentName,
			UserID:    expired.UserID,
			Reason:    "idle timeout",
		}).WithSession(expired.ID, bus.SessionComplete))
	}

	if m.machine != nil {
		m.machine.CheckTimeout()
	}

	if m.memory != nil {
		if err := m.memory.Flush(); err != nil {
			logger.WarnCF("maintenance", "Vector store flush failed",
				map[string]any{"error": err.Error()})
		}
	}
}

// RunOnce triggers a single maintenance pass immediately.
func (m *Maintenance) RunOnce() {
	m.runOnce()
}
