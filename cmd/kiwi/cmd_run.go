package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the assistant with console input",
		Long: `Start the full pipeline with the simulated capture chain. Each line
typed on stdin is spoken into the simulated microphone and travels the whole
path: wakeword detection, VAD boundaries, recognition, orchestration, agent
execution and TTS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := buildRuntime(ctx, cfg, false)
			if err != nil {
				return err
			}
			if err := rt.controller.Initialize(); err != nil {
				return err
			}
			if err := rt.controller.Start(); err != nil {
				return err
			}
			defer rt.shutdown()

			fmt.Println("kiwi is listening. Type an utterance, or /quit to exit.")
			go consoleLoop(ctx, rt, cancel)

			<-ctx.Done()
			logger.InfoC("main", "Shutting down")
			return nil
		},
	}
}

func consoleLoop(ctx context.Context, rt *runtime, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			cancel()
			return
		}
		if line == "/stats" {
			fmt.Printf("%+v\n", rt.controller.Statistics())
			continue
		}

		// Speak the line into the simulated microphone; it reaches the
		// orchestrator only by surviving wakeword, VAD and recognition.
		rt.mic.Say(line)
	}
}
