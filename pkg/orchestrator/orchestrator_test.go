package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/session"
)

type stubProvider struct {
	content string
	err     error
}

func (s *stubProvider) Chat(context.Context, []providers.Message, []providers.ToolDefinition, string, map[string]any) (*providers.LLMResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &providers.LLMResponse{Content: s.content}, nil
}

func (s *stubProvider) GetDefaultModel() string { return "test" }

func testAgents() []config.AgentConfig {
	return []config.AgentConfig{
		{Name: "navigation_agent", Priority: 80, Enabled: true, Capabilities: []string{"导航", "路线"}},
		{Name: "music_agent", Priority: 20, Enabled: true, Capabilities: []string{"音乐", "播放"}},
		{Name: "disabled_agent", Priority: 50, Enabled: false, Capabilities: []string{"隐藏"}},
		{Name: "chat_agent", Priority: 10, Enabled: true},
	}
}

func TestLLMSelection(t *testing.T) {
	llm := &stubProvider{content: `{"selected_agent": "navigation_agent", "confidence": 0.92, "reasoning": "导航意图"}`}
	o := New(llm, testAgents())

	d := o.Decide(context.Background(), Input{Query: "导航到北京故宫", UserID: "u1"})
	assert.Equal(t, "navigation_agent", d.SelectedAgent)
	assert.False(t, d.Resume)
	assert.InDelta(t, 0.92, d.Confidence, 0.001)
}

func TestRuleFallbackOnLLMFailure(t *testing.T) {
	o := New(&stubProvider{err: errors.New("llm down")}, testAgents())

	d := o.Decide(context.Background(), Input{Query: "播放一首音乐", UserID: "u1"})
	assert.Equal(t, "music_agent", d.SelectedAgent)
}

func TestRuleFallbackDefaultsToChat(t *testing.T) {
	o := New(&stubProvider{err: errors.New("llm down")}, testAgents())

	d := o.Decide(context.Background(), Input{Query: "今天心情不错", UserID: "u1"})
	assert.Equal(t, "chat_agent", d.SelectedAgent)
}

func TestUnknownLLMChoiceFallsBack(t *testing.T) {
	llm := &stubProvider{content: `{"selected_agent": "ghost_agent", "confidence": 0.9}`}
	o := New(llm, testAgents())

	d := o.Decide(context.Background(), Input{Query: "播放音乐", UserID: "u1"})
	assert.Equal(t, "music_agent", d.SelectedAgent)
}

func TestDisabledAgentsExcluded(t *testing.T) {
	o := New(&stubProvider{err: errors.New("down")}, testAgents())

	_, ok := o.Agent("disabled_agent")
	assert.False(t, ok)

	d := o.Decide(context.Background(), Input{Query: "隐藏功能", UserID: "u1"})
	assert.Equal(t, "chat_agent", d.SelectedAgent)
}

func TestAnswerToPendingRoutesBackToSessionAgent(t *testing.T) {
	llm := &stubProvider{content: `{"is_answer": true}`}
	o := New(llm, testAgents())

	active := &session.Session{
		ID:        "s1",
		AgentName: "music_agent",
		State:     session.WaitingInput,
		Prompt:    "请问想听什么歌？",
	}
	d := o.Decide(context.Background(), Input{Query: "周杰伦的晴天", UserID: "u1", ActiveSession: active})

	require.True(t, d.Resume)
	assert.Equal(t, "music_agent", d.SelectedAgent)
}

func TestNewIntentDuringWaitingSessionSelectsFresh(t *testing.T) {
	// Classifier says it's not an answer; selection then picks by LLM.
	llm := &stubProvider{content: `{"is_answer": false, "selected_agent": "navigation_agent", "confidence": 0.8}`}
	o := New(llm, testAgents())

	active := &session.Session{
		ID:        "s1",
		AgentName: "music_agent",
		State:     session.WaitingInput,
		Prompt:    "请问想听什么歌？",
	}
	d := o.Decide(context.Background(), Input{Query: "导航到北京故宫", UserID: "u1", ActiveSession: active})

	assert.False(t, d.Resume)
	assert.Equal(t, "navigation_agent", d.SelectedAgent)
}

func TestAnswerHeuristicWhenClassifierDown(t *testing.T) {
	o := New(&stubProvider{err: errors.New("down")}, testAgents())

	active := &session.Session{
		ID:        "s1",
		AgentName: "music_agent",
		State:     session.WaitingInput,
		Prompt:    "请问想听什么歌？",
	}

	// A bare answer has no other agent's capability keyword: treated as answer.
	d := o.Decide(context.Background(), Input{Query: "周杰伦的晴天", UserID: "u1", ActiveSession: active})
	assert.True(t, d.Resume)

	// A query with another agent's keyword reads as a new intent.
	d = o.Decide(context.Background(), Input{Query: "导航到北京故宫", UserID: "u1", ActiveSession: active})
	assert.False(t, d.Resume)
	assert.Equal(t, "navigation_agent", d.SelectedAgent)
}
