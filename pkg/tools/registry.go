package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/vehicle"
)

// ErrValidation marks argument validation failures so the MCP surface can map
// them to the invalid-params error code.
var ErrValidation = errors.New("invalid tool arguments")

// ErrUnknownTool is returned for names not present in the registry.
var ErrUnknownTool = errors.New("tool not found")

// Registry indexes tools by name with a secondary index by category, owns the
// vehicle state store handlers mutate, and enforces the execution rate limit.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]*Tool
	byCategory map[Category][]string
	state      *vehicle.Store
	limiter    *rate.Limiter
}

// NewRegistry creates a registry bound to the given vehicle state.
// maxPerMinute <= 0 disables rate limiting.
func NewRegistry(state *vehicle.Store, maxPerMinute int) *Registry {
	r := &Registry{
		tools:      make(map[string]*Tool),
		byCategory: make(map[Category][]string),
		state:      state,
	}
	if maxPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60), maxPerMinute)
	}
	return r
}

// State exposes the vehicle store for read access (GUI, information tools).
func (r *Registry) State() *vehicle.Store {
	return r.state
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.tools[tool.Name]; ok {
		names := r.byCategory[old.Category]
		for i, n := range names {
			if n == tool.Name {
				r.byCategory[old.Category] = append(names[:i], names[i+1:]...)
				break
			}
		}
	}
	r.tools[tool.Name] = tool
	r.byCategory[tool.Category] = append(r.byCategory[tool.Category], tool.Name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns tool names, optionally restricted to one category, in sorted
// order.
func (r *Registry) List(category Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if category == "" {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
	} else {
		names = append(names, r.byCategory[category]...)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute validates args against the tool's schema and runs its handler.
// Validation failures come back as an error wrapping ErrValidation; handler
// outcomes, including failures, come back in the Result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if r.limiter != nil && !r.limiter.Allow() {
		return Fail("tool execution rate limit exceeded"), nil
	}

	validated, err := tool.ValidateArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	logger.DebugCF("tools", "Tool execution started",
		map[string]any{"tool": name, "args": validated})

	start := time.Now()
	result := tool.Handler(ctx, validated, r.state)
	duration := time.Since(start)

	if result == nil {
		result = Fail(fmt.Sprintf("tool %s returned no result", name))
	}
	if result.Success {
		logger.InfoCF("tools", "Tool execution completed",
			map[string]any{"tool": name, "duration_ms": duration.Milliseconds()})
	} else {
		logger.WarnCF("tools", "Tool execution failed",
			map[string]any{"tool": name, "message": result.Message})
	}
	return result, nil
}

// sortedNamesLocked keeps definition output deterministic so prompts built from the
// registry are stable across calls.
func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderDefs renders the tools of the given categories (all when empty) in
// the function-calling format the LLM providers expect.
func (r *Registry) ProviderDefs(categories ...Category) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	include := make(map[Category]bool, len(categories))
	for _, c := range categories {
		include[c] = true
	}

	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, name := range r.sortedNamesLocked() {
		t := r.tools[name]
		if len(include) > 0 && !include[t.Category] {
			continue
		}
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema(),
			},
		})
	}
	return defs
}
