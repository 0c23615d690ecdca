package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/tools"
	"github.com/brookwillow/kiwi/pkg/vehicle"
)

// scriptedProvider replays a queue of responses.
type scriptedProvider struct {
	responses []*providers.LLMResponse
	requests  [][]providers.Message
}

func (s *scriptedProvider) Chat(_ context.Context, messages []providers.Message, _ []providers.ToolDefinition, _ string, _ map[string]any) (*providers.LLMResponse, error) {
	s.requests = append(s.requests, messages)
	if len(s.responses) == 0 {
		return &providers.LLMResponse{Content: "好的"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedProvider) GetDefaultModel() string { return "test" }

func toolAgentFixture(llm providers.LLMProvider) *ToolAgent {
	registry := tools.NewRegistry(vehicle.NewStore(), 0)
	for _, t := range tools.Catalog() {
		registry.Register(t)
	}
	cfg := config.AgentConfig{
		Name: "music_agent", Description: "音乐播放", Priority: 20,
		Interruptible: true, Enabled: true,
	}
	return NewToolAgent(cfg, llm, registry, []tools.Category{tools.CategoryEntertainment})
}

func TestToolAgentExecutesToolThenReplies(t *testing.T) {
	llm := &scriptedProvider{responses: []*providers.LLMResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{{
				ID: "call_1", Name: "play_music",
				Arguments: map[string]any{"song": "晴天", "artist": "周杰伦"},
			}},
		},
		{Content: "已为您播放周杰伦的晴天。"},
	}}
	a := toolAgentFixture(llm)

	resp := a.Handle(context.Background(), "播放周杰伦的晴天", &Context{})
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "已为您播放周杰伦的晴天。", resp.Message)
	assert.Equal(t, []string{"play_music"}, toStringSlice(resp.Data["tools_used"]))

	// The second LLM round must carry the tool result back.
	lastMessages := llm.requests[len(llm.requests)-1]
	foundToolResult := false
	for _, m := range lastMessages {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			foundToolResult = true
		}
	}
	assert.True(t, foundToolResult)
}

func TestToolAgentStructuredAskYieldsWaitingInput(t *testing.T) {
	llm := &scriptedProvider{responses: []*providers.LLMResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{{
				ID: "call_1", Name: "ask_user",
				Arguments: map[string]any{"prompt": "好的,请问想听什么歌?"},
			}},
		},
	}}
	a := toolAgentFixture(llm)

	resp := a.Handle(context.Background(), "播放音乐", &Context{})
	require.Equal(t, StatusWaitingInput, resp.Status)
	assert.Equal(t, "好的,请问想听什么歌?", resp.Prompt)
}

func TestToolAgentFreeTextQuestionYieldsWaitingInput(t *testing.T) {
	llm := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: "请问想听什么歌？"},
	}}
	a := toolAgentFixture(llm)

	resp := a.Handle(context.Background(), "播放音乐", &Context{})
	require.Equal(t, StatusWaitingInput, resp.Status)
	assert.Equal(t, "请问想听什么歌？", resp.Prompt)
}

func TestIsAsking(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"请问想听什么歌？", true},
		{"你想去哪里?", true},
		{"What would you like to hear", true},
		{"已为您播放晴天。", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isAsking(c.text), c.text)
	}
}

func TestSessionAgentCollectsSlotsAcrossTurns(t *testing.T) {
	cfg := config.AgentConfig{Name: "hotel_agent", Enabled: true}
	a := NewSessionAgent(cfg, []Slot{
		{Name: "city", Prompt: "请问哪个城市？"},
		{Name: "date", Prompt: "请问入住日期是哪天？"},
	}, func(_ context.Context, filled map[string]string) (string, error) {
		return "已为您查询" + filled["city"] + filled["date"] + "的酒店。", nil
	})

	// First turn: nothing filled, asks for the city.
	resp := a.Handle(context.Background(), "帮我订酒店", &Context{})
	require.Equal(t, StatusWaitingInput, resp.Status)
	assert.Equal(t, "请问哪个城市？", resp.Prompt)
	assert.Equal(t, "city", resp.Data["pending_slot"])

	// Second turn: answer fills city, asks for the date.
	sctx := map[string]any{}
	for k, v := range resp.Data {
		sctx[k] = v
	}
	resp = a.Handle(context.Background(), "上海", &Context{SessionContext: sctx})
	require.Equal(t, StatusWaitingInput, resp.Status)
	assert.Equal(t, "请问入住日期是哪天？", resp.Prompt)
	assert.Equal(t, "上海", resp.Data["slot_city"])

	// Third turn: all slots filled, completes.
	sctx = map[string]any{}
	for k, v := range resp.Data {
		sctx[k] = v
	}
	resp = a.Handle(context.Background(), "明天", &Context{SessionContext: sctx})
	require.Equal(t, StatusCompleted, resp.Status)
	assert.Contains(t, resp.Message, "上海")
	assert.Contains(t, resp.Message, "明天")
}

func TestManagerBuildsConfiguredAgents(t *testing.T) {
	registry := tools.NewRegistry(vehicle.NewStore(), 0)
	cfgs := []config.AgentConfig{
		{Name: "chat_agent", Enabled: true},
		{Name: "music_agent", Enabled: true},
		{Name: "planner_agent", Enabled: true},
		{Name: "disabled_agent", Enabled: false},
	}
	m := NewManager(cfgs, &scriptedProvider{}, registry)

	_, ok := m.Get("chat_agent")
	assert.True(t, ok)
	_, ok = m.Get("music_agent")
	assert.True(t, ok)
	_, ok = m.Get("planner_agent")
	assert.True(t, ok)
	_, ok = m.Get("disabled_agent")
	assert.False(t, ok)
	assert.Len(t, m.Configs(), 3)
}

func TestManagerUnknownAgentReturnsErrorResponse(t *testing.T) {
	m := NewManager(nil, &scriptedProvider{}, tools.NewRegistry(vehicle.NewStore(), 0))

	resp := m.Execute(context.Background(), "ghost_agent", "hi", nil)
	assert.Equal(t, StatusError, resp.Status)
}

func toStringSlice(v any) []string {
	s, _ := v.([]string)
	return s
}
