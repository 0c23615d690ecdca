package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/memory"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/session"
)

const defaultAgent = "chat_agent"

// Decision is the orchestrator's routing result for one utterance.
type Decision struct {
	SelectedAgent string         `json:"selected_agent"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning"`
	Parameters    map[string]any `json:"parameters,omitempty"`

	// Resume is true when the utterance answers the active session's pending
	// prompt rather than opening a new intent.
	Resume bool `json:"-"`
}

// Input is everything the orchestrator considers for one utterance.
type Input struct {
	Query         string
	UserID        string
	ActiveSession *session.Session
	Recent        []memory.ShortTermEntry
	LongTerm      memory.LongTermRecord
}

// Orchestrator picks an agent for each utterance. Selection uses the LLM with
// a structured prompt; a rule-based keyword fallback covers LLM failures.
type Orchestrator struct {
	llm    providers.LLMProvider
	agents []config.AgentConfig
}

func New(llm providers.LLMProvider, agents []config.AgentConfig) *Orchestrator {
	enabled := make([]config.AgentConfig, 0, len(agents))
	for _, a := range agents {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return &Orchestrator{llm: llm, agents: enabled}
}

// Agents returns the enabled agent configurations in file order.
func (o *Orchestrator) Agents() []config.AgentConfig {
	return o.agents
}

// Agent looks an agent up by name.
func (o *Orchestrator) Agent(name string) (config.AgentConfig, bool) {
	for _, a := range o.agents {
		if a.Name == name {
			return a, true
		}
	}
	return config.AgentConfig{}, false
}

// Decide routes the utterance. With an active session it first classifies
// answer-to-pending vs new-intent; a classified answer routes back to the
// session's agent with Resume set.
func (o *Orchestrator) Decide(ctx context.Context, input Input) Decision {
	if input.ActiveSession != nil && input.ActiveSession.State == session.WaitingInput {
		if o.isAnswerToPending(ctx, input) {
			return Decision{
				SelectedAgent: input.ActiveSession.AgentName,
				Confidence:    1.0,
				Reasoning:     "answer to pending session prompt",
				Resume:        true,
			}
		}
	}
	return o.selectAgent(ctx, input)
}

// isAnswerToPending classifies the utterance against the session's pending
// prompt. The LLM does the call; on failure a heuristic treats short
// utterances without an explicit new-intent keyword as answers.
func (o *Orchestrator) isAnswerToPending(ctx context.Context, input Input) bool {
	prompt := fmt.Sprintf(`当前助手正在等待用户回答以下问题：
"%s"

用户刚刚说："%s"

判断用户这句话是在回答上面的问题，还是提出了一个新的、无关的请求。
只输出JSON：{"is_answer": true或false}`, input.ActiveSession.Prompt, input.Query)

	// No retry here: classification has a rule fallback and sits on the
	// utterance latency path.
	resp, err := o.llm.Chat(ctx,
		[]providers.Message{
			{Role: "system", Content: "你是一个对话意图分类器。"},
			{Role: "user", Content: prompt},
		},
		nil, "", map[string]any{"temperature": 0.0, "response_format": "json_object"})
	if err != nil {
		logger.WarnCF("orchestrator", "Answer classification failed, using heuristic",
			map[string]any{"error": err.Error()})
		return o.answerHeuristic(input.Query)
	}

	var parsed struct {
		IsAnswer bool `json:"is_answer"`
	}
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &parsed); err != nil {
		return o.answerHeuristic(input.Query)
	}
	return parsed.IsAnswer
}

// answerHeuristic: an utterance that matches any enabled agent's capability
// keywords (the active session's own agent included) looks like a new intent;
// everything else is treated as an answer.
func (o *Orchestrator) answerHeuristic(query string) bool {
	for _, a := range o.agents {
		for _, cap := range a.Capabilities {
			if cap != "" && strings.Contains(query, cap) {
				return false
			}
		}
	}
	return true
}

func (o *Orchestrator) selectAgent(ctx context.Context, input Input) Decision {
	decision, err := o.llmSelect(ctx, input)
	if err != nil {
		logger.WarnCF("orchestrator", "LLM selection failed, falling back to rules",
			map[string]any{"error": err.Error()})
		return o.ruleSelect(input.Query)
	}
	if _, ok := o.Agent(decision.SelectedAgent); !ok {
		logger.WarnCF("orchestrator", "LLM selected unknown agent, falling back to rules",
			map[string]any{"agent": decision.SelectedAgent})
		return o.ruleSelect(input.Query)
	}
	return decision
}

func (o *Orchestrator) llmSelect(ctx context.Context, input Input) (Decision, error) {
	resp, err := o.llm.Chat(ctx,
		[]providers.Message{
			{Role: "system", Content: "你是一个专业的智能决策系统，负责分析用户意图并选择合适的Agent处理请求。"},
			{Role: "user", Content: o.buildPrompt(input)},
		},
		nil, "", map[string]any{"temperature": 0.3, "response_format": "json_object"})
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &decision); err != nil {
		return Decision{}, fmt.Errorf("failed to parse decision: %w", err)
	}
	if decision.SelectedAgent == "" {
		return Decision{}, fmt.Errorf("decision has no selected agent")
	}
	return decision, nil
}

func (o *Orchestrator) buildPrompt(input Input) string {
	agentsInfo := make([]map[string]any, 0, len(o.agents))
	for _, a := range o.agents {
		agentsInfo = append(agentsInfo, map[string]any{
			"name":         a.Name,
			"description":  a.Description,
			"capabilities": a.Capabilities,
		})
	}
	agentsJSON, _ := json.MarshalIndent(agentsInfo, "", "  ")

	history := make([]map[string]string, 0, len(input.Recent))
	for _, m := range input.Recent {
		history = append(history, map[string]string{"user": m.Query, "assistant": m.Response})
	}
	historyJSON, _ := json.MarshalIndent(history, "", "  ")

	var longTermInfo string
	if input.LongTerm.Summary != "" || len(input.LongTerm.Profile) > 0 {
		profileJSON, _ := json.MarshalIndent(input.LongTerm.Profile, "", "  ")
		prefJSON, _ := json.MarshalIndent(input.LongTerm.Preferences, "", "  ")
		longTermInfo = fmt.Sprintf("- 摘要：%s\n- 用户信息：%s\n- 偏好设置：%s",
			input.LongTerm.Summary, profileJSON, prefJSON)
	}

	return fmt.Sprintf(`你是一个智能车载助手的决策中心，需要根据用户的查询和当前上下文信息，选择最合适的Agent来处理用户请求。

**用户当前查询：**
%s

**对话历史：**
%s

**用户画像和偏好：**
%s

**可用的Agents：**
%s

**决策要求：**
1. 仔细分析用户查询的意图
2. 考虑对话历史和用户偏好
3. 从可用的Agents中选择最合适的一个
4. 如果查询涉及多个领域或需要多步骤协调完成，选择"planner_agent"
5. 如果用户查询不明确或无法由任何Agent处理，选择"chat_agent"

**输出格式（必须是有效的JSON）：**
{
    "selected_agent": "agent名称",
    "confidence": 0.95,
    "reasoning": "选择这个agent的理由",
    "parameters": {}
}

请直接返回JSON格式的决策结果，不要包含任何其他文字说明。`,
		input.Query, historyJSON, longTermInfo, agentsJSON)
}

// ruleSelect picks the first agent with a capability keyword found in the
// query, defaulting to chat_agent.
func (o *Orchestrator) ruleSelect(query string) Decision {
	lowered := strings.ToLower(query)
	for _, a := range o.agents {
		for _, cap := range a.Capabilities {
			if cap == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(cap)) {
				return Decision{
					SelectedAgent: a.Name,
					Confidence:    0.5,
					Reasoning:     fmt.Sprintf("keyword match on capability %q", cap),
				}
			}
		}
	}
	return Decision{
		SelectedAgent: defaultAgent,
		Confidence:    0.3,
		Reasoning:     "no capability matched, defaulting to chat",
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
