package config

// DefaultConfig returns the built-in defaults. Values mirror a 16 kHz mono
// capture pipeline with webrtc-style VAD framing.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "qwen-plus",
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-v3",
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			ChunkSize:     1024,
			Format:        "s16le",
			BufferSeconds: 5,
		},
		VAD: VADConfig{
			FrameDurationMS:     30,
			Aggressiveness:      2,
			SilenceTimeoutMS:    800,
			PreSpeechBufferMS:   300,
			MinSpeechDurationMS: 250,
		},
		Wakeword: WakewordConfig{
			Keyword:       "kiwi",
			Threshold:     0.5,
			ListenTimeout: 10,
		},
		Memory: MemoryConfig{
			ShortTermCapacity: 100,
			TriggerCount:      10,
			MaxHistoryRounds:  30,
			EmbeddingModel:    "text-embedding-v3",
			VectorDBPath:      "data/vectors",
			LongTermFile:      "data/long_term_memory.json",
			ScoreThreshold:    0.7,
		},
		Session: SessionConfig{
			TTLSeconds:    300,
			SweepSchedule: "* * * * *",
		},
		Tools: ToolsConfig{
			MaxExecutionsPerMinute: 0,
		},
		GUI: GUIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8765,
		},
		Eval: EvalConfig{
			ReportFile:     "eval_report.json",
			MaxFollowUps:   3,
			TimeoutSeconds: 30,
			PollIntervalMS: 50,
		},
		AgentsFile: "config/agents.json",
	}
}
