package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON-RPC style error codes used on the MCP surface.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCPRequest is the inbound envelope.
type MCPRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
	ID     string         `json:"id,omitempty"`
}

// MCPError carries the error code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCPResponse is the outbound envelope: exactly one of Result or Error set.
type MCPResponse struct {
	Result any       `json:"result,omitempty"`
	Error  *MCPError `json:"error,omitempty"`
	ID     string    `json:"id,omitempty"`
}

// MCPServer exposes the tool registry over the MCP request/response envelope.
type MCPServer struct {
	registry   *Registry
	serverName string
	version    string
}

func NewMCPServer(registry *Registry) *MCPServer {
	return &MCPServer{
		registry:   registry,
		serverName: "kiwi-vehicle-control",
		version:    "1.0.0",
	}
}

// HandleRequest dispatches one envelope.
func (s *MCPServer) HandleRequest(ctx context.Context, req MCPRequest) MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return MCPResponse{
			ID:    req.ID,
			Error: &MCPError{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)},
		}
	}
}

// HandleJSON decodes a JSON envelope, dispatches it, and encodes the reply.
func (s *MCPServer) HandleJSON(ctx context.Context, data []byte) []byte {
	var req MCPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		resp := MCPResponse{Error: &MCPError{Code: CodeInvalidParams, Message: "Invalid request: " + err.Error()}}
		out, _ := json.Marshal(resp)
		return out
	}
	out, _ := json.Marshal(s.HandleRequest(ctx, req))
	return out
}

func (s *MCPServer) handleInitialize(req MCPRequest) MCPResponse {
	return MCPResponse{
		ID: req.ID,
		Result: map[string]any{
			"server_name": s.serverName,
			"version":     s.version,
			"capabilities": map[string]any{
				"tools":     true,
				"resources": false,
				"prompts":   false,
			},
		},
	}
}

func (s *MCPServer) handleToolsList(req MCPRequest) MCPResponse {
	names := s.registry.List("")
	toolDefs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		toolDefs = append(toolDefs, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.InputSchema(),
		})
	}
	return MCPResponse{ID: req.ID, Result: map[string]any{"tools": toolDefs}}
}

func (s *MCPServer) handleToolsCall(ctx context.Context, req MCPRequest) MCPResponse {
	if req.Params == nil {
		return MCPResponse{
			ID:    req.ID,
			Error: &MCPError{Code: CodeInvalidParams, Message: "Invalid params: missing params"},
		}
	}

	name, _ := req.Params["name"].(string)
	if name == "" {
		return MCPResponse{
			ID:    req.ID,
			Error: &MCPError{Code: CodeInvalidParams, Message: "Invalid params: missing tool name"},
		}
	}

	args, _ := req.Params["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	result, err := s.registry.Execute(ctx, name, args)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownTool):
			return MCPResponse{
				ID:    req.ID,
				Error: &MCPError{Code: CodeInvalidParams, Message: fmt.Sprintf("Tool not found: %s", name)},
			}
		case errors.Is(err, ErrValidation):
			return MCPResponse{
				ID:    req.ID,
				Error: &MCPError{Code: CodeInvalidParams, Message: validationMessage(err)},
			}
		default:
			return MCPResponse{
				ID:    req.ID,
				Error: &MCPError{Code: CodeInternalError, Message: "Tool execution failed: " + err.Error()},
			}
		}
	}
	return MCPResponse{ID: req.ID, Result: result}
}

// validationMessage strips the ErrValidation prefix so the wire message reads
// "missing required parameter: temperature".
func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
