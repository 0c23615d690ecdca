package main

import (
	"bufio"
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/tools"
	"github.com/brookwillow/kiwi/pkg/vehicle"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the vehicle tool catalog over the MCP envelope on stdio",
		Long: `Reads one JSON request per line from stdin and writes one JSON
response per line to stdout. Supported methods: initialize, tools/list,
tools/call.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			registry := tools.NewRegistry(vehicle.NewStore(), cfg.Tools.MaxExecutionsPerMinute)
			for _, t := range tools.Catalog() {
				registry.Register(t)
			}
			server := tools.NewMCPServer(registry)

			ctx := context.Background()
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
			out := bufio.NewWriter(os.Stdout)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				out.Write(server.HandleJSON(ctx, line))
				out.WriteByte('\n')
				out.Flush()
			}
			return scanner.Err()
		},
	}
}
