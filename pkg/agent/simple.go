package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/providers"
)

// SimpleAgent handles a query in a single synchronous turn: one LLM call, no
// tools, no session state.
type SimpleAgent struct {
	cfg          config.AgentConfig
	llm          providers.LLMProvider
	systemPrompt string
}

func NewSimpleAgent(cfg config.AgentConfig, llm providers.LLMProvider, systemPrompt string) *SimpleAgent {
	if systemPrompt == "" {
		systemPrompt = "你是一个友好的车载语音助手，用简短自然的中文回答用户。"
	}
	return &SimpleAgent{cfg: cfg, llm: llm, systemPrompt: systemPrompt}
}

func (a *SimpleAgent) Name() string {
	return a.cfg.Name
}

func (a *SimpleAgent) Config() config.AgentConfig {
	return a.cfg
}

func (a *SimpleAgent) Handle(ctx context.Context, query string, actx *Context) *Response {
	messages := []providers.Message{
		{Role: "system", Content: a.systemPrompt + a.contextReminder(actx)},
	}
	if actx != nil {
		for _, m := range actx.Recent {
			messages = append(messages,
				providers.Message{Role: "user", Content: m.Query},
				providers.Message{Role: "assistant", Content: m.Response})
		}
	}
	messages = append(messages, providers.Message{Role: "user", Content: query})

	resp, err := providers.ChatWithRetry(ctx, a.llm, messages, nil, "", map[string]any{"temperature": 0.7})
	if err != nil {
		return errorResponse(a.cfg.Name, query, "抱歉，我暂时无法回答。")
	}

	return &Response{
		Agent:   a.cfg.Name,
		Query:   query,
		Status:  StatusSuccess,
		Message: resp.Content,
	}
}

// contextReminder folds the user's long-term profile into the system prompt.
func (a *SimpleAgent) contextReminder(actx *Context) string {
	if actx == nil {
		return ""
	}
	if actx.LongTerm.Summary == "" && len(actx.LongTerm.Profile) == 0 {
		return ""
	}
	profileJSON, _ := json.Marshal(actx.LongTerm.Profile)
	return fmt.Sprintf("\n\n已知的用户信息：%s\n用户摘要：%s", profileJSON, actx.LongTerm.Summary)
}
