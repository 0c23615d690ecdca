package main

import (
	"context"
	"time"

	"github.com/brookwillow/kiwi/pkg/adapters"
	"github.com/brookwillow/kiwi/pkg/agent"
	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/controller"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/memory"
	"github.com/brookwillow/kiwi/pkg/orchestrator"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/session"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tools"
	"github.com/brookwillow/kiwi/pkg/tracker"
	"github.com/brookwillow/kiwi/pkg/vecstore"
	"github.com/brookwillow/kiwi/pkg/vehicle"
)

// runtime bundles the wired coordination plane.
type runtime struct {
	cfg        *config.Config
	eventBus   *bus.EventBus
	machine    *statemachine.Machine
	tracker    *tracker.Tracker
	sessions   *session.Manager
	memory     *memory.Manager
	registry   *tools.Registry
	llm        providers.LLMProvider
	controller *controller.Controller
	store      *tracker.Store

	// mic drives the simulated capture chain; nil in evaluation mode, where
	// utterances are injected at the recognition stage.
	mic *adapters.SimulatedMicrophone
}

// buildRuntime wires the coordination plane. In run mode the simulated
// capture chain (microphone → wakeword → VAD → ASR) and a console
// synthesizer are attached; evalMode skips both, since the evaluator injects
// recognized text directly and never speaks.
func buildRuntime(ctx context.Context, cfg *config.Config, evalMode bool) (*runtime, error) {
	agentCfgs, err := config.LoadAgents(cfg.AgentsFile)
	if err != nil {
		return nil, err
	}

	llm, err := providers.CreateProvider(cfg)
	if err != nil {
		return nil, err
	}

	var store *tracker.Store
	if cfg.Tracker.DBPath != "" {
		store, err = tracker.OpenStore(cfg.Tracker.DBPath)
		if err != nil {
			logger.WarnCF("main", "Trace persistence disabled",
				map[string]any{"error": err.Error()})
			store = nil
		}
	}

	eventBus := bus.New()
	machine := statemachine.New(time.Duration(cfg.Wakeword.ListenTimeout) * time.Second)
	tr := tracker.New(store)
	sessions := session.NewManager(time.Duration(cfg.Session.TTLSeconds) * time.Second)

	embedder := vecstore.NewOpenAIEmbedder(
		firstNonEmpty(cfg.Embedding.APIKey, cfg.LLM.APIKey),
		firstNonEmpty(cfg.Embedding.BaseURL, cfg.LLM.BaseURL),
		firstNonEmpty(cfg.Memory.EmbeddingModel, cfg.Embedding.Model),
	)
	vectors := vecstore.NewStore(cfg.Memory.VectorDBPath)
	mem := memory.NewManager(cfg.Memory, vectors, embedder, llm)

	state := vehicle.NewStore()
	registry := tools.NewRegistry(state, cfg.Tools.MaxExecutionsPerMinute)
	for _, t := range tools.Catalog() {
		registry.Register(t)
	}
	if len(cfg.Tools.MCPServers) > 0 {
		external, err := tools.LoadMCPTools(ctx, cfg.Tools.MCPServers)
		if err != nil {
			logger.WarnCF("main", "Some MCP servers failed to load",
				map[string]any{"error": err.Error()})
		}
		for _, t := range external {
			registry.Register(t)
		}
	}

	orch := orchestrator.New(llm, agentCfgs)
	agents := agent.NewManager(agentCfgs, llm, registry)

	ctrl := controller.New(eventBus, machine, sessions, tr)

	rt := &runtime{
		cfg:        cfg,
		eventBus:   eventBus,
		machine:    machine,
		tracker:    tr,
		sessions:   sessions,
		memory:     mem,
		registry:   registry,
		llm:        llm,
		controller: ctrl,
		store:      store,
	}

	// Capture side first: upstream stages initialize and start before their
	// consumers. Evaluation bypasses capture entirely.
	var synth adapters.Synthesizer
	if !evalMode {
		simVAD := adapters.NewSimulatedVAD(cfg.Audio, cfg.VAD)
		minSpeechFrames := cfg.VAD.MinSpeechDurationMS/cfg.VAD.FrameDurationMS + 2
		rt.mic = adapters.NewSimulatedMicrophone(cfg.Audio, simVAD.FrameBytes(), minSpeechFrames)
		rt.attachCaptureChain(
			rt.mic,
			adapters.NewSimulatedWakeword(cfg.Wakeword),
			simVAD,
			adapters.NewSimulatedASR(simVAD.FrameBytes()),
		)
		synth = adapters.NewConsoleSynthesizer()
	}

	orchAdapter := adapters.NewOrchestratorAdapter(eventBus, machine, tr, orch, sessions, mem)
	agentAdapter := adapters.NewAgentAdapter(eventBus, machine, tr, agents, orch, sessions, mem)
	ttsAdapter := adapters.NewTTSAdapter(eventBus, tr, synth)
	memAdapter := adapters.NewMemoryAdapter(eventBus, mem)

	ctrl.Register(orchAdapter)
	ctrl.Register(agentAdapter)
	ctrl.Register(ttsAdapter)
	ctrl.Register(memAdapter)

	if cfg.GUI.Enabled {
		ctrl.Register(adapters.NewGUIAdapter(eventBus, cfg.GUI))
	}

	maint, err := controller.NewMaintenance(cfg.Session.SweepSchedule, eventBus, sessions, machine, mem)
	if err != nil {
		return nil, err
	}
	ctrl.SetMaintenance(maint)

	return rt, nil
}

// attachCaptureChain registers the audio-side adapters. Run mode attaches
// the simulated engines; real engine drivers plug in the same way.
func (r *runtime) attachCaptureChain(recorder adapters.Recorder, detector adapters.WakewordDetector, vadEngine adapters.VADEngine, asrEngine adapters.ASREngine) {
	r.controller.Register(adapters.NewAudioAdapter(r.eventBus, recorder, r.cfg.Audio))
	r.controller.Register(adapters.NewWakewordAdapter(r.eventBus, r.machine, r.tracker, detector))
	r.controller.Register(adapters.NewVADAdapter(r.eventBus, r.machine, r.tracker, vadEngine, r.cfg.VAD))
	r.controller.Register(adapters.NewASRAdapter(r.eventBus, r.machine, r.tracker, asrEngine, r.cfg.Audio))
}

func (r *runtime) shutdown() {
	r.controller.Stop()
	if err := r.memory.Flush(); err != nil {
		logger.WarnCF("main", "Final vector store flush failed",
			map[string]any{"error": err.Error()})
	}
	if r.store != nil {
		r.store.Close()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
