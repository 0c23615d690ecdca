package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/tools"
)

const maxToolIterations = 5

// askUserTool is a pseudo-tool injected into the definitions so the model can
// signal "I need more information" structurally instead of free text. The
// free-text question heuristic remains as a fallback for models that answer
// in prose anyway.
var askUserTool = providers.ToolDefinition{
	Type: "function",
	Function: providers.ToolFunctionDefinition{
		Name:        "ask_user",
		Description: "当缺少执行工具所需的信息时，调用此工具向用户提问。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "向用户提出的问题",
				},
			},
			"required": []string{"prompt"},
		},
	},
}

var interrogativeTokens = []string{
	"请问", "什么", "哪", "几点", "多少", "是否", "吗？", "呢？",
	"what", "which", "where", "when", "how",
}

// ToolAgent drives the LLM's function calling against the tool registry.
// A reply that asks the user for more information yields waiting_input, which
// gives single- and multi-turn behavior from one type.
type ToolAgent struct {
	cfg        config.AgentConfig
	llm        providers.LLMProvider
	registry   *tools.Registry
	categories []tools.Category
}

func NewToolAgent(cfg config.AgentConfig, llm providers.LLMProvider, registry *tools.Registry, categories []tools.Category) *ToolAgent {
	return &ToolAgent{cfg: cfg, llm: llm, registry: registry, categories: categories}
}

func (a *ToolAgent) Name() string {
	return a.cfg.Name
}

func (a *ToolAgent) Config() config.AgentConfig {
	return a.cfg
}

func (a *ToolAgent) Handle(ctx context.Context, query string, actx *Context) *Response {
	defs := a.registry.ProviderDefs(a.categories...)
	if len(defs) == 0 {
		return errorResponse(a.cfg.Name, query, "没有可用的工具")
	}
	defs = append(defs, askUserTool)

	messages := []providers.Message{
		{Role: "system", Content: a.systemPrompt(actx)},
	}
	if prior := priorInput(actx); prior != "" {
		// Resumed session: replay the collected context so the model sees the
		// whole exchange, not just the latest answer.
		messages = append(messages, providers.Message{Role: "user", Content: prior})
		if prompt, _ := actx.SessionContext["pending_prompt"].(string); prompt != "" {
			messages = append(messages, providers.Message{Role: "assistant", Content: prompt})
		}
	}
	messages = append(messages, providers.Message{Role: "user", Content: query})

	toolsUsed := make([]string, 0, 2)
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := providers.ChatWithRetry(ctx, a.llm, messages, defs, "", nil)
		if err != nil {
			logger.ErrorCF("agent", "LLM call failed",
				map[string]any{"agent": a.cfg.Name, "error": err.Error()})
			return errorResponse(a.cfg.Name, query, "抱歉，处理失败了。")
		}

		if len(resp.ToolCalls) == 0 {
			// Plain text: either the final reply or a free-text question.
			if isAsking(resp.Content) {
				return &Response{
					Agent:   a.cfg.Name,
					Query:   query,
					Status:  StatusWaitingInput,
					Prompt:  resp.Content,
					Message: resp.Content,
				}
			}
			return &Response{
				Agent:   a.cfg.Name,
				Query:   query,
				Status:  StatusSuccess,
				Message: orDefault(resp.Content, "好的"),
				Data:    map[string]any{"tools_used": toolsUsed},
			}
		}

		// The structured ask takes precedence over any tool execution.
		for _, tc := range resp.ToolCalls {
			if tc.Name == "ask_user" {
				prompt, _ := tc.Arguments["prompt"].(string)
				return &Response{
					Agent:   a.cfg.Name,
					Query:   query,
					Status:  StatusWaitingInput,
					Prompt:  prompt,
					Message: prompt,
				}
			}
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result, err := a.registry.Execute(ctx, tc.Name, tc.Arguments)
			var resultText string
			if err != nil {
				resultText = fmt.Sprintf(`{"success": false, "message": %q}`, err.Error())
			} else {
				resultText = fmt.Sprintf(`{"success": %t, "message": %q}`, result.Success, result.Message)
			}
			toolsUsed = append(toolsUsed, tc.Name)
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    resultText,
				ToolCallID: tc.ID,
			})
		}
	}

	return errorResponse(a.cfg.Name, query, "抱歉，操作过于复杂，请换一种说法。")
}

func (a *ToolAgent) systemPrompt(actx *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是车载助手的%s。%s\n", a.cfg.Name, a.cfg.Description)
	b.WriteString("根据用户的请求选择并调用合适的工具。缺少必要信息时调用ask_user向用户提问，不要自行编造参数。完成操作后用一句简短的中文确认。")
	if actx != nil && len(actx.Recent) > 0 {
		b.WriteString("\n\n最近的对话：\n")
		for _, m := range actx.Recent {
			fmt.Fprintf(&b, "用户：%s\n助手：%s\n", m.Query, m.Response)
		}
	}
	return b.String()
}

// isAsking is the stopgap free-text question detector: a question mark or an
// interrogative token marks the reply as a request for more information.
func isAsking(text string) bool {
	if text == "" {
		return false
	}
	if strings.ContainsAny(text, "?？") {
		return true
	}
	lowered := strings.ToLower(text)
	for _, token := range interrogativeTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

func priorInput(actx *Context) string {
	if actx == nil || actx.SessionContext == nil {
		return ""
	}
	s, _ := actx.SessionContext["original_query"].(string)
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
