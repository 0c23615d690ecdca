package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/brookwillow/kiwi/pkg/config"
)

// Slot is one piece of information a session flow must collect.
type Slot struct {
	Name   string
	Prompt string
}

// Finisher produces the final reply once every slot is filled.
type Finisher func(ctx context.Context, filled map[string]string) (string, error)

// SessionAgent is the multi-turn flavor: it collects a fixed set of slots
// across turns, returning waiting_input until everything is filled. The agent
// never sees session ids; the adapter persists the collected slots through
// the session context.
type SessionAgent struct {
	cfg    config.AgentConfig
	slots  []Slot
	finish Finisher
}

func NewSessionAgent(cfg config.AgentConfig, slots []Slot, finish Finisher) *SessionAgent {
	return &SessionAgent{cfg: cfg, slots: slots, finish: finish}
}

func (a *SessionAgent) Name() string {
	return a.cfg.Name
}

func (a *SessionAgent) Config() config.AgentConfig {
	return a.cfg
}

func (a *SessionAgent) Handle(ctx context.Context, query string, actx *Context) *Response {
	filled := make(map[string]string)
	if actx != nil && actx.SessionContext != nil {
		for _, slot := range a.slots {
			if v, ok := actx.SessionContext["slot_"+slot.Name].(string); ok && v != "" {
				filled[slot.Name] = v
			}
		}
		// The current query answers the slot we asked about last turn.
		if pending, ok := actx.SessionContext["pending_slot"].(string); ok && pending != "" {
			filled[pending] = strings.TrimSpace(query)
		}
	}

	for _, slot := range a.slots {
		if filled[slot.Name] != "" {
			continue
		}
		data := map[string]any{"pending_slot": slot.Name}
		for name, v := range filled {
			data["slot_"+name] = v
		}
		return &Response{
			Agent:   a.cfg.Name,
			Query:   query,
			Status:  StatusWaitingInput,
			Prompt:  slot.Prompt,
			Message: slot.Prompt,
			Data:    data,
		}
	}

	message, err := a.finish(ctx, filled)
	if err != nil {
		return errorResponse(a.cfg.Name, query, fmt.Sprintf("抱歉，处理失败：%v", err))
	}
	return &Response{
		Agent:   a.cfg.Name,
		Query:   query,
		Status:  StatusCompleted,
		Message: message,
	}
}
