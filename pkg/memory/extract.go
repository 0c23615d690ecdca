package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brookwillow/kiwi/pkg/providers"
)

const extractSystemPrompt = "你是一个专业的用户画像分析系统，擅长从对话中提取用户的关键信息。"

// extractProfile asks the model to distill the recent conversation rounds
// into an updated summary, profile and preference record.
func (m *Manager) extractProfile(ctx context.Context, history []ShortTermEntry, current LongTermRecord) (LongTermRecord, error) {
	conversations := make([]map[string]any, 0, len(history))
	for _, e := range history {
		conversations = append(conversations, map[string]any{
			"user":      e.Query,
			"assistant": e.Response,
			"timestamp": e.Timestamp.Unix(),
		})
	}

	convJSON, _ := json.MarshalIndent(conversations, "", "  ")
	profileJSON, _ := json.MarshalIndent(current.Profile, "", "  ")
	prefJSON, _ := json.MarshalIndent(current.Preferences, "", "  ")

	var b strings.Builder
	b.WriteString("你是一个专业的用户画像分析师，负责从用户的对话历史中提取关键信息，生成用户的长期记忆。\n\n")
	b.WriteString("**对话历史：**\n")
	b.Write(convJSON)
	b.WriteString("\n\n**当前用户画像：**\n")
	b.Write(profileJSON)
	b.WriteString("\n\n**当前用户偏好：**\n")
	b.Write(prefJSON)
	b.WriteString(`

**任务要求：**
1. 分析对话历史，提取用户的身份信息
2. 提取用户的个人兴趣和喜好
3. 生成用户对话的总体摘要
4. 在已有画像和偏好的基础上更新补充，不要覆盖已有的准确信息
5. 只提取对话中明确提到的信息，不要猜测或推断

**输出格式（必须是有效的JSON）：**
{
    "summary": "用户对话的总体摘要，100字以内",
    "profile": {"name": "...", "occupation": "...", "location": "..."},
    "preferences": {"music": ["..."], "food": ["..."], "other_interests": ["..."]}
}

只输出JSON，不要包含任何其他文字说明。`)

	resp, err := providers.ChatWithRetry(ctx, m.llm,
		[]providers.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		nil, "", map[string]any{"temperature": 0.3, "response_format": "json_object"})
	if err != nil {
		return LongTermRecord{}, fmt.Errorf("profile extraction failed: %w", err)
	}

	var parsed struct {
		Summary     string              `json:"summary"`
		Profile     map[string]any      `json:"profile"`
		Preferences map[string][]string `json:"preferences"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &parsed); err != nil {
		return LongTermRecord{}, fmt.Errorf("failed to parse profile extraction output: %w", err)
	}

	record := emptyLongTerm()
	record.Summary = parsed.Summary
	for k, v := range parsed.Profile {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		record.Profile[k] = v
	}
	for k, v := range parsed.Preferences {
		if len(v) == 0 {
			continue
		}
		record.Preferences[k] = v
	}
	return record, nil
}

// stripCodeFence unwraps a ```json ... ``` fenced block if the model added one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
