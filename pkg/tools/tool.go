package tools

import (
	"context"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/vehicle"
)

// Category groups tools for per-agent scoping.
type Category string

const (
	CategoryVehicleControl Category = "vehicle_control"
	CategoryClimate        Category = "climate"
	CategoryEntertainment  Category = "entertainment"
	CategoryNavigation     Category = "navigation"
	CategoryWindow         Category = "window"
	CategorySeat           Category = "seat"
	CategoryLighting       Category = "lighting"
	CategorySafety         Category = "safety"
	CategoryADAS           Category = "adas"
	CategoryDoor           Category = "door"
	CategoryWiper          Category = "wiper"
	CategoryAmbient        Category = "ambient"
	CategoryCommunication  Category = "communication"
	CategoryInformation    Category = "information"
	CategoryExternal       Category = "external" // tools imported from MCP servers
)

// Parameter declares one tool argument.
type Parameter struct {
	Name        string
	Type        string // string, number, integer, boolean
	Description string
	Required    bool
	Default     any
	Enum        []any
}

// Handler executes a tool against the vehicle state.
type Handler func(ctx context.Context, args map[string]any, state *vehicle.Store) *Result

// Tool is a named callable with a declared parameter schema.
type Tool struct {
	Name        string
	Description string
	Category    Category
	Parameters  []Parameter
	Handler     Handler
}

// Result is the uniform tool outcome.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func OK(message string) *Result {
	return &Result{Success: true, Message: message}
}

func OKData(message string, data map[string]any) *Result {
	return &Result{Success: true, Message: message, Data: data}
}

func Fail(message string) *Result {
	return &Result{Success: false, Message: message}
}

// InputSchema renders the parameter list as a JSON-Schema-like object.
func (t *Tool) InputSchema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	required := make([]string, 0, len(t.Parameters))

	for _, p := range t.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ValidateArgs checks required presence, type and enum membership, and fills
// declared defaults for missing optional parameters. The returned map is a
// copy; the caller's map is never mutated.
func (t *Tool) ValidateArgs(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	for _, p := range t.Parameters {
		v, present := out[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter: %s", p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		if !typeMatches(p.Type, v) {
			return nil, fmt.Errorf("invalid type for parameter %s: expected %s", p.Name, p.Type)
		}
		if len(p.Enum) > 0 && !enumContains(p.Enum, v) {
			return nil, fmt.Errorf("invalid value for parameter %s: %v", p.Name, v)
		}
	}
	return out, nil
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	}
	return true
}

func enumContains(enum []any, v any) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", v) {
			return true
		}
	}
	return false
}
