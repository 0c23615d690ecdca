package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

type LLMConfig struct {
	Provider string `json:"provider" env:"KIWI_LLM_PROVIDER"` // "openai" or "anthropic"
	Model    string `json:"model" env:"KIWI_LLM_MODEL"`
	APIKey   string `json:"api_key" env:"KIWI_LLM_API_KEY"`
	BaseURL  string `json:"base_url" env:"KIWI_LLM_BASE_URL"`
}

type EmbeddingConfig struct {
	Model   string `json:"model" env:"KIWI_EMBEDDING_MODEL"`
	APIKey  string `json:"api_key" env:"KIWI_EMBEDDING_API_KEY"`
	BaseURL string `json:"base_url" env:"KIWI_EMBEDDING_BASE_URL"`
}

type AudioConfig struct {
	SampleRate    int    `json:"sample_rate" env:"KIWI_AUDIO_SAMPLE_RATE"`
	Channels      int    `json:"channels" env:"KIWI_AUDIO_CHANNELS"`
	ChunkSize     int    `json:"chunk_size" env:"KIWI_AUDIO_CHUNK_SIZE"`
	Format        string `json:"format" env:"KIWI_AUDIO_FORMAT"`
	BufferSeconds int    `json:"buffer_seconds" env:"KIWI_AUDIO_BUFFER_SECONDS"`
}

type VADConfig struct {
	FrameDurationMS     int `json:"frame_duration_ms" env:"KIWI_VAD_FRAME_DURATION_MS"` // 10, 20 or 30
	Aggressiveness      int `json:"aggressiveness" env:"KIWI_VAD_AGGRESSIVENESS"`       // 0-3
	SilenceTimeoutMS    int `json:"silence_timeout_ms" env:"KIWI_VAD_SILENCE_TIMEOUT_MS"`
	PreSpeechBufferMS   int `json:"pre_speech_buffer_ms" env:"KIWI_VAD_PRE_SPEECH_BUFFER_MS"`
	MinSpeechDurationMS int `json:"min_speech_duration_ms" env:"KIWI_VAD_MIN_SPEECH_DURATION_MS"`
}

type WakewordConfig struct {
	Keyword       string  `json:"keyword" env:"KIWI_WAKEWORD_KEYWORD"`
	Threshold     float64 `json:"threshold" env:"KIWI_WAKEWORD_THRESHOLD"`
	ListenTimeout int     `json:"listen_timeout_seconds" env:"KIWI_WAKEWORD_LISTEN_TIMEOUT"`
}

type MemoryConfig struct {
	ShortTermCapacity int     `json:"short_term_capacity" env:"KIWI_MEMORY_SHORT_TERM_CAPACITY"`
	TriggerCount      int     `json:"trigger_count" env:"KIWI_MEMORY_TRIGGER_COUNT"`
	MaxHistoryRounds  int     `json:"max_history_rounds" env:"KIWI_MEMORY_MAX_HISTORY_ROUNDS"`
	EmbeddingModel    string  `json:"embedding_model" env:"KIWI_MEMORY_EMBEDDING_MODEL"`
	VectorDBPath      string  `json:"vector_db_path" env:"KIWI_MEMORY_VECTOR_DB_PATH"`
	LongTermFile      string  `json:"long_term_file" env:"KIWI_MEMORY_LONG_TERM_FILE"`
	ScoreThreshold    float64 `json:"score_threshold" env:"KIWI_MEMORY_SCORE_THRESHOLD"`
}

type SessionConfig struct {
	TTLSeconds    int    `json:"ttl_seconds" env:"KIWI_SESSION_TTL_SECONDS"`
	SweepSchedule string `json:"sweep_schedule" env:"KIWI_SESSION_SWEEP_SCHEDULE"` // cron expression
}

type ToolsConfig struct {
	MaxExecutionsPerMinute int               `json:"max_executions_per_minute" env:"KIWI_TOOLS_MAX_EXECUTIONS_PER_MINUTE"` // 0 = unlimited
	MCPServers             []MCPServerConfig `json:"mcp_servers"`
}

// MCPServerConfig describes an external MCP server whose tools are merged
// into the local registry at startup.
type MCPServerConfig struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

type TrackerConfig struct {
	DBPath string `json:"db_path" env:"KIWI_TRACKER_DB_PATH"` // empty disables persistence
}

type GUIConfig struct {
	Enabled bool   `json:"enabled" env:"KIWI_GUI_ENABLED"`
	Host    string `json:"host" env:"KIWI_GUI_HOST"`
	Port    int    `json:"port" env:"KIWI_GUI_PORT"`
}

type EvalConfig struct {
	CasesFile       string `json:"cases_file" env:"KIWI_EVAL_CASES_FILE"`
	ReportFile      string `json:"report_file" env:"KIWI_EVAL_REPORT_FILE"`
	MaxFollowUps    int    `json:"max_follow_ups" env:"KIWI_EVAL_MAX_FOLLOW_UPS"`
	TimeoutSeconds  int    `json:"timeout_seconds" env:"KIWI_EVAL_TIMEOUT_SECONDS"`
	UseLLMJudge     bool   `json:"use_llm_judge" env:"KIWI_EVAL_USE_LLM_JUDGE"`
	PollIntervalMS  int    `json:"poll_interval_ms" env:"KIWI_EVAL_POLL_INTERVAL_MS"`
}

type Config struct {
	LLM        LLMConfig       `json:"llm"`
	Embedding  EmbeddingConfig `json:"embedding"`
	Audio      AudioConfig     `json:"audio"`
	VAD        VADConfig       `json:"vad"`
	Wakeword   WakewordConfig  `json:"wakeword"`
	Memory     MemoryConfig    `json:"memory"`
	Session    SessionConfig   `json:"session"`
	Tools      ToolsConfig     `json:"tools"`
	Tracker    TrackerConfig   `json:"tracker"`
	GUI        GUIConfig       `json:"gui"`
	Eval       EvalConfig      `json:"eval"`
	AgentsFile string          `json:"agents_file" env:"KIWI_AGENTS_FILE"`
}

// AgentConfig is one entry of the agents configuration document. Order is
// significant: the orchestrator prompt enumerates agents in file order.
type AgentConfig struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Priority      int      `json:"priority"` // 0-100, higher preempts lower
	Interruptible bool     `json:"interruptible"`
	Enabled       bool     `json:"enabled"`
	Capabilities  []string `json:"capabilities"`
}

// Load reads the config file (if present), applies env overrides and
// validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAgents reads the ordered agents list. The file is required when the
// runtime starts in pipeline mode.
func LoadAgents(path string) ([]AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents config: %w", err)
	}

	var doc struct {
		Agents []AgentConfig `json:"agents"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse agents config: %w", err)
	}

	for i, a := range doc.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agents config entry %d has no name", i)
		}
		if a.Priority < 0 || a.Priority > 100 {
			return nil, fmt.Errorf("agent %q priority %d out of range [0,100]", a.Name, a.Priority)
		}
	}
	return doc.Agents, nil
}

// Validate rejects configurations the pipeline cannot start with.
func (c *Config) Validate() error {
	switch c.VAD.FrameDurationMS {
	case 10, 20, 30:
	default:
		return fmt.Errorf("vad frame_duration_ms must be 10, 20 or 30, got %d", c.VAD.FrameDurationMS)
	}
	if c.VAD.Aggressiveness < 0 || c.VAD.Aggressiveness > 3 {
		return fmt.Errorf("vad aggressiveness must be in [0,3], got %d", c.VAD.Aggressiveness)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Memory.ShortTermCapacity <= 0 {
		return fmt.Errorf("memory short_term_capacity must be positive, got %d", c.Memory.ShortTermCapacity)
	}
	if c.Memory.TriggerCount <= 0 {
		return fmt.Errorf("memory trigger_count must be positive, got %d", c.Memory.TriggerCount)
	}
	return nil
}
