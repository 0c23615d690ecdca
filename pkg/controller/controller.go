package controller

import (
	"fmt"

	"github.com/brookwillow/kiwi/pkg/adapters"
	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/session"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// Controller owns module lifecycles: initialize/start in registration order,
// stop/cleanup in reverse. An initialization failure aborts startup and
// cleans up the modules already initialized.
type Controller struct {
	eventBus *bus.EventBus
	machine  *statemachine.Machine
	sessions *session.Manager
	tracker  *tracker.Tracker

	modules []adapters.Module
	byName  map[string]adapters.Module

	initialized []adapters.Module
	started     []adapters.Module
	maintenance *Maintenance
	running     bool
}

func New(eventBus *bus.EventBus, machine *statemachine.Machine, sessions *session.Manager, tr *tracker.Tracker) *Controller {
	c := &Controller{
		eventBus: eventBus,
		machine:  machine,
		sessions: sessions,
		tracker:  tr,
		byName:   make(map[string]adapters.Module),
	}

	// State transitions surface on the bus as state_changed events.
	machine.OnChange(func(t statemachine.Transition) {
		eventBus.Publish(bus.NewEvent(bus.StateChanged, "state_machine", bus.StateChange{
			From:   string(t.From),
			To:     string(t.To),
			Reason: t.Reason,
		}))
	})
	return c
}

// Register appends a module. Order matters: upstream pipeline stages register
// first so downstream consumers start after their producers stop last.
func (c *Controller) Register(m adapters.Module) {
	c.modules = append(c.modules, m)
	c.byName[m.Name()] = m
}

// Module returns a registered module by name.
func (c *Controller) Module(name string) (adapters.Module, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// SetMaintenance attaches the periodic maintenance loop.
func (c *Controller) SetMaintenance(m *Maintenance) {
	c.maintenance = m
}

// Initialize initializes every module in registration order. The first
// failure aborts and cleans up the already-initialized prefix.
func (c *Controller) Initialize() error {
	for _, m := range c.modules {
		if err := m.Initialize(); err != nil {
			logger.ErrorCF("controller", "Module initialization failed",
				map[string]any{"module": m.Name(), "error": err.Error()})
			c.cleanupInitialized()
			return fmt.Errorf("failed to initialize %s: %w", m.Name(), err)
		}
		c.initialized = append(c.initialized, m)
		logger.InfoCF("controller", "Module initialized", map[string]any{"module": m.Name()})
	}
	return nil
}

// Start starts every module in order; a failure stops the already-started
// prefix in reverse and cleans up.
func (c *Controller) Start() error {
	for _, m := range c.modules {
		if err := m.Start(); err != nil {
			logger.ErrorCF("controller", "Module start failed",
				map[string]any{"module": m.Name(), "error": err.Error()})
			c.stopStarted()
			c.cleanupInitialized()
			return fmt.Errorf("failed to start %s: %w", m.Name(), err)
		}
		c.started = append(c.started, m)
	}

	if c.maintenance != nil {
		c.maintenance.Start()
	}
	c.running = true
	c.eventBus.Publish(bus.NewEvent(bus.SystemStart, "controller", nil))
	logger.InfoCF("controller", "System started", map[string]any{"modules": len(c.modules)})
	return nil
}

// Stop stops modules in reverse order, aborts unfinished traces, and cleans
// up.
func (c *Controller) Stop() {
	if !c.running {
		return
	}
	c.running = false
	c.eventBus.Publish(bus.NewEvent(bus.SystemStop, "controller", nil))

	if c.maintenance != nil {
		c.maintenance.Stop()
	}
	c.stopStarted()
	c.tracker.AbortPending()
	c.cleanupInitialized()
	c.eventBus.Close()
	logger.InfoC("controller", "System stopped")
}

func (c *Controller) stopStarted() {
	for i := len(c.started) - 1; i >= 0; i-- {
		c.started[i].Stop()
	}
	c.started = nil
}

func (c *Controller) cleanupInitialized() {
	for i := len(c.initialized) - 1; i >= 0; i-- {
		c.initialized[i].Cleanup()
	}
	c.initialized = nil
}

// Publish forwards an event to the bus. The evaluator uses this to inject
// synthetic recognition results.
func (c *Controller) Publish(ev bus.Event) {
	c.eventBus.Publish(ev)
}

// Running reports whether Start completed and Stop has not run.
func (c *Controller) Running() bool {
	return c.running
}

// Statistics aggregates per-module counters plus session stats.
func (c *Controller) Statistics() map[string]any {
	out := make(map[string]any, len(c.modules)+1)
	for _, m := range c.modules {
		out[m.Name()] = m.Statistics()
	}
	out["sessions"] = c.sessions.Stats()
	return out
}
