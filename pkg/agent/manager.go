package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/tools"
)

// agentCategories scopes each known tool-using agent to its tool categories.
// Agents not listed here see the whole catalog.
var agentCategories = map[string][]tools.Category{
	"vehicle_control_agent": {
		tools.CategoryVehicleControl, tools.CategoryClimate, tools.CategoryWindow,
		tools.CategorySeat, tools.CategoryLighting, tools.CategorySafety,
		tools.CategoryADAS, tools.CategoryDoor, tools.CategoryWiper, tools.CategoryAmbient,
	},
	"music_agent":      {tools.CategoryEntertainment},
	"navigation_agent": {tools.CategoryNavigation},
	"phone_agent":      {tools.CategoryCommunication},
	"system_agent":     {tools.CategoryInformation, tools.CategoryVehicleControl},
}

// Manager is the agent runtime: it builds the configured agents and executes
// them by name.
type Manager struct {
	mu      sync.RWMutex
	agents  map[string]Agent
	configs []config.AgentConfig
	stats   map[string]int
}

// NewManager constructs every enabled agent from configuration. Agent flavor
// is derived from the name: chat_agent is the plain conversational agent,
// planner_agent the meta-agent, hotel_agent the slot-filling session flavor,
// everything else a tool-using agent scoped by agentCategories.
func NewManager(cfgs []config.AgentConfig, llm providers.LLMProvider, registry *tools.Registry) *Manager {
	m := &Manager{
		agents: make(map[string]Agent),
		stats:  make(map[string]int),
	}

	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		m.configs = append(m.configs, cfg)
		m.agents[cfg.Name] = m.build(cfg, llm, registry)
	}

	logger.InfoCF("agent", "Agent runtime ready", map[string]any{"agents": len(m.agents)})
	return m
}

func (m *Manager) build(cfg config.AgentConfig, llm providers.LLMProvider, registry *tools.Registry) Agent {
	switch {
	case cfg.Name == "chat_agent":
		return NewSimpleAgent(cfg, llm, "")
	case cfg.Name == "planner_agent":
		return NewPlannerAgent(cfg, llm, m.Configs, m.directRunner())
	case strings.Contains(cfg.Name, "hotel"):
		return NewSessionAgent(cfg, []Slot{
			{Name: "city", Prompt: "请问哪个城市？"},
			{Name: "date", Prompt: "请问入住日期是哪天？"},
		}, func(_ context.Context, filled map[string]string) (string, error) {
			return fmt.Sprintf("好的，已为您查询%s %s的酒店。", filled["city"], filled["date"]), nil
		})
	default:
		return NewToolAgent(cfg, llm, registry, agentCategories[cfg.Name])
	}
}

// directRunner executes planned tasks straight through the runtime. The agent
// adapter replaces it with a dispatch-routing runner at startup.
func (m *Manager) directRunner() TaskRunner {
	return func(ctx context.Context, agentName, query string, actx *Context) *Response {
		return m.Execute(ctx, agentName, query, actx)
	}
}

// SetPlannerRunner reroutes planner task execution, if a planner is
// configured.
func (m *Manager) SetPlannerRunner(runner TaskRunner) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if p, ok := a.(*PlannerAgent); ok {
			p.SetRunner(runner)
		}
	}
}

// Get returns the agent by name.
func (m *Manager) Get(name string) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[name]
	return a, ok
}

// Configs returns the enabled agent configurations in file order.
func (m *Manager) Configs() []config.AgentConfig {
	return m.configs
}

// Execute runs the named agent. Unknown agents produce an error response
// rather than an error so the adapter's flow stays uniform.
func (m *Manager) Execute(ctx context.Context, name, query string, actx *Context) *Response {
	a, ok := m.Get(name)
	if !ok {
		logger.ErrorCF("agent", "Unknown agent requested", map[string]any{"agent": name})
		return errorResponse(name, query, "抱歉，没有找到能处理这个请求的助手。")
	}

	m.mu.Lock()
	m.stats[name]++
	m.mu.Unlock()

	resp := a.Handle(ctx, query, actx)
	if resp == nil {
		resp = errorResponse(name, query, "抱歉，处理失败了。")
	}
	return resp
}

// Stats returns per-agent execution counts.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}
