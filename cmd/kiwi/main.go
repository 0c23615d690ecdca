package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brookwillow/kiwi/pkg/logger"
)

var (
	version    = "dev"
	configPath string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "kiwi",
		Short:         "Kiwi voice assistant runtime",
		Long:          "Kiwi turns a microphone stream into intent-driven in-car actions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/kiwi.json", "path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(*cobra.Command, []string) {
			fmt.Println("kiwi " + version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
