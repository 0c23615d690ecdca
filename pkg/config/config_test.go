package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 10, cfg.Memory.TriggerCount)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiwi.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"llm": {"provider": "anthropic", "model": "claude-sonnet-4-5"},
		"vad": {"frame_duration_ms": 20, "aggressiveness": 3, "silence_timeout_ms": 500, "pre_speech_buffer_ms": 200, "min_speech_duration_ms": 200}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 20, cfg.VAD.FrameDurationMS)
	// Untouched sections keep defaults.
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("KIWI_LLM_MODEL", "qwen-max")
	t.Setenv("KIWI_MEMORY_TRIGGER_COUNT", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qwen-max", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Memory.TriggerCount)
}

func TestValidateRejectsBadVADFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VAD.FrameDurationMS = 25
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadAggressiveness(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VAD.Aggressiveness = 5
	require.Error(t, cfg.Validate())
}

func TestLoadAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agents": [
		{"name": "navigation_agent", "description": "导航", "priority": 80, "interruptible": false, "enabled": true, "capabilities": ["导航"]},
		{"name": "chat_agent", "description": "闲聊", "priority": 10, "interruptible": true, "enabled": true, "capabilities": []}
	]}`), 0o644))

	agents, err := LoadAgents(path)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "navigation_agent", agents[0].Name)
	assert.False(t, agents[0].Interruptible)
}

func TestLoadAgentsRejectsOutOfRangePriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agents": [
		{"name": "x_agent", "priority": 120, "enabled": true}
	]}`), 0o644))

	_, err := LoadAgents(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestLoadAgentsRejectsMissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agents": [{"priority": 10}]}`), 0o644))

	_, err := LoadAgents(path)
	require.Error(t, err)
}
