package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

// Planner composition: three independent tasks produce three dispatch events
// with the planner utterance's correlation id and three distinct session ids.
func TestPlannerTasksDispatchWithSharedCorrelationID(t *testing.T) {
	plan := `{"tasks": [
		{"task_id": "t1", "description": "导航到上海", "agent": "navigation_agent", "depends_on": []},
		{"task_id": "t2", "description": "播放轻音乐", "agent": "music_agent", "depends_on": []},
		{"task_id": "t3", "description": "空调调到22度", "agent": "vehicle_control_agent", "depends_on": []}
	]}`

	llm := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: plan},
		// navigation task
		{FinishReason: "tool_calls", ToolCalls: []providers.ToolCall{{
			ID: "c1", Name: "navigate_to", Arguments: map[string]any{"destination": "上海"},
		}}},
		{Content: "已规划前往上海的路线。"},
		// music task
		{FinishReason: "tool_calls", ToolCalls: []providers.ToolCall{{
			ID: "c2", Name: "play_music", Arguments: map[string]any{"song": "轻音乐"},
		}}},
		{Content: "已播放轻音乐。"},
		// climate task
		{FinishReason: "tool_calls", ToolCalls: []providers.ToolCall{{
			ID: "c3", Name: "set_temperature", Arguments: map[string]any{"zone": "driver", "temperature": 22.0},
		}}},
		{Content: "空调已调到22度。"},
		// summary
		{Content: "长途准备完成：导航、音乐、空调都已就绪。"},
	}}

	f := newFixtureWithPlanner(t, llm)

	msgID := f.tracker.CreateMessageID()
	dispatch(f, msgID, "planner_agent", "准备长途:导航到上海,播放轻音乐,空调调到22度", "", bus.SessionNew)

	// All three domains mutated.
	assert.True(t, f.registry.State().Bool("navigation_active"))
	assert.True(t, f.registry.State().Bool("music_playing"))
	assert.Equal(t, 22.0, f.registry.State().Number("temperature_driver"))

	dispatches := f.collector.ofKind(bus.AgentDispatchRequest)
	require.Len(t, dispatches, 3)

	sessionIDs := map[string]bool{}
	for _, ev := range dispatches {
		assert.Equal(t, msgID, ev.MessageID, "sub-task must carry the planner's correlation id")
		require.NotEmpty(t, ev.SessionID)
		sessionIDs[ev.SessionID] = true
	}
	assert.Len(t, sessionIDs, 3, "each task runs in its own session")

	snap, _ := f.tracker.Snapshot(msgID)
	assert.Equal(t, tracker.StatusCompleted, snap.Status)
	assert.Equal(t, "长途准备完成：导航、音乐、空调都已就绪。", snap.Response)
}

func newFixtureWithPlanner(t *testing.T, llm providers.LLMProvider) *adapterFixture {
	t.Helper()
	f := newFixture(t, llm)
	f.eventBus.Subscribe(bus.AgentDispatchRequest, f.collector.collect)
	return f
}
