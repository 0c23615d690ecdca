package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/eval"
)

func evalCmd() *cobra.Command {
	var casesFile string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the batch evaluation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if casesFile != "" {
				cfg.Eval.CasesFile = casesFile
			}
			if cfg.Eval.CasesFile == "" {
				return fmt.Errorf("no cases file configured (use --cases)")
			}

			cases, err := eval.LoadCases(cfg.Eval.CasesFile)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := buildRuntime(ctx, cfg, true)
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

			evaluator := eval.New(rt.controller, rt.tracker, rt.llm, cfg.Eval)
			report, err := evaluator.Run(ctx, cases)
			if err != nil {
				return err
			}

			fmt.Printf("total=%d agent_match=%.1f%% response_pass=%.1f%% overall=%.1f%% avg_latency=%.0fms\n",
				report.Summary.Total,
				report.Summary.AgentMatchRate*100,
				report.Summary.ResponsePassRate*100,
				report.Summary.OverallPassRate*100,
				report.Summary.AvgLatencyMS)
			return nil
		},
	}

	cmd.Flags().StringVar(&casesFile, "cases", "", "JSONL evaluation cases file")
	return cmd
}
