package agent

import (
	"context"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/memory"
)

// Status is the agent outcome kind.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Terminal reports whether the status ends the agent's session.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusCompleted || s == StatusError
}

// Response is what every agent flavor returns. The session id is stamped by
// the agent adapter, never by the agent itself.
type Response struct {
	Agent   string         `json:"agent"`
	Query   string         `json:"query"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Prompt  string         `json:"prompt,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Context carries per-call context into an agent: the session's stored
// context for multi-turn flows, recalled memories, and orchestrator
// parameters.
type Context struct {
	UserID         string
	SessionContext map[string]any
	Recent         []memory.ShortTermEntry
	LongTerm       memory.LongTermRecord
	Parameters     map[string]any
}

// Agent is the uniform runtime contract for all flavors (simple, tool-using,
// session, planner).
type Agent interface {
	Name() string
	Config() config.AgentConfig
	Handle(ctx context.Context, query string, actx *Context) *Response
}

func errorResponse(name, query, message string) *Response {
	return &Response{
		Agent:   name,
		Query:   query,
		Status:  StatusError,
		Message: message,
	}
}
