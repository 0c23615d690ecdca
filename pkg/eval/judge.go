package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// scoreResponse judges response quality: an LLM verdict when a judge is
// configured, a rule check otherwise or on judge failure.
func (e *Evaluator) scoreResponse(ctx context.Context, c Case, snapshot tracker.TraceSnapshot) (bool, string) {
	if snapshot.Status == tracker.StatusFailed || snapshot.Status == tracker.StatusAborted {
		return false, "pipeline reported " + string(snapshot.Status)
	}

	if e.judge != nil && e.cfg.UseLLMJudge {
		pass, judgement, err := e.llmJudge(ctx, c, snapshot.Response)
		if err == nil {
			return pass, judgement
		}
	}
	return ruleJudge(c, snapshot.Response)
}

func (e *Evaluator) llmJudge(ctx context.Context, c Case, actual string) (bool, string, error) {
	prompt := fmt.Sprintf(`评估车载助手的回复质量。

用户查询：%s
期望的回复类型：%s
实际回复：%s

判断实际回复是否合理地满足了用户的请求（不要求字面一致，语义符合即可）。
只输出JSON：{"pass": true或false, "reason": "一句话理由"}`,
		c.Query, c.ExpectedResponse, actual)

	resp, err := providers.ChatWithRetry(ctx, e.judge,
		[]providers.Message{
			{Role: "system", Content: "你是一个严格但公平的对话质量评估员。"},
			{Role: "user", Content: prompt},
		},
		nil, "", map[string]any{"temperature": 0.0, "response_format": "json_object"})
	if err != nil {
		return false, "", err
	}

	var verdict struct {
		Pass   bool   `json:"pass"`
		Reason string `json:"reason"`
	}
	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &verdict); err != nil {
		return false, "", fmt.Errorf("failed to parse judge verdict: %w", err)
	}
	return verdict.Pass, verdict.Reason, nil
}

// ruleJudge is the fallback: a non-empty reply passes, and when the case
// names an expected response it must share at least one token with the reply.
func ruleJudge(c Case, actual string) (bool, string) {
	if strings.TrimSpace(actual) == "" {
		return false, "empty response"
	}
	expected := strings.TrimSpace(c.ExpectedResponse)
	if expected == "" {
		return true, "non-empty response accepted by rule"
	}

	for _, token := range strings.Fields(expected) {
		if strings.Contains(actual, token) {
			return true, "matched expected token by rule"
		}
	}
	if strings.Contains(actual, expected) {
		return true, "matched expected response by rule"
	}
	return false, "no overlap with expected response"
}
