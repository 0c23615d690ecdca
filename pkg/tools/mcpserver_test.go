package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPInitialize(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{Method: "initialize", ID: "1"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "kiwi-vehicle-control", result["server_name"])
	assert.NotEmpty(t, result["version"])

	caps, ok := result["capabilities"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, caps["tools"])
}

func TestMCPToolsListShapes(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{Method: "tools/list"})
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	toolDefs := result["tools"].([]map[string]any)
	require.NotEmpty(t, toolDefs)

	for _, def := range toolDefs {
		assert.NotEmpty(t, def["name"])
		schema := def["input_schema"].(map[string]any)
		assert.Equal(t, "object", schema["type"])
		_, hasProps := schema["properties"]
		assert.True(t, hasProps)
		_, hasRequired := schema["required"]
		assert.True(t, hasRequired)
	}
}

func TestMCPUnknownMethod(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{Method: "resources/list", ID: "7"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "7", resp.ID)
}

func TestMCPCallMissingRequiredParameter(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{
		Method: "tools/call",
		Params: map[string]any{
			"name":      "set_temperature",
			"arguments": map[string]any{"zone": "driver"},
		},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Equal(t, "missing required parameter: temperature", resp.Error.Message)
}

func TestMCPCallRejectsValueOutsideEnum(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{
		Method: "tools/call",
		Params: map[string]any{
			"name":      "set_temperature",
			"arguments": map[string]any{"zone": "trunk", "temperature": 22.0},
		},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid value for parameter zone")
}

func TestMCPCallSuccess(t *testing.T) {
	registry := newTestRegistry(0)
	s := NewMCPServer(registry)

	resp := s.HandleRequest(context.Background(), MCPRequest{
		Method: "tools/call",
		Params: map[string]any{
			"name":      "set_temperature",
			"arguments": map[string]any{"zone": "driver", "temperature": 22.0},
		},
	})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*Result)
	require.True(t, ok)
	assert.True(t, result.Success)
	assert.Equal(t, 22.0, registry.State().Number("temperature_driver"))
}

func TestMCPCallUnknownTool(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{
		Method: "tools/call",
		Params: map[string]any{"name": "fly_to_moon"},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestMCPCallMissingParams(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	resp := s.HandleRequest(context.Background(), MCPRequest{Method: "tools/call"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestMCPHandleJSONRoundTrip(t *testing.T) {
	s := NewMCPServer(newTestRegistry(0))

	out := s.HandleJSON(context.Background(), []byte(`{
		"method": "tools/call",
		"id": "42",
		"params": {"name": "set_temperature", "arguments": {"zone": "driver"}}
	}`))

	var resp struct {
		Error *MCPError `json:"error"`
		ID    string    `json:"id"`
	}
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
	assert.Equal(t, "missing required parameter: temperature", resp.Error.Message)
	assert.Equal(t, "42", resp.ID)
}
