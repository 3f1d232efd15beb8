package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convoguard/convoguard/internal/alerts"
	mcpserver "github.com/convoguard/convoguard/internal/mcp"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/safetyconfig"
	"github.com/convoguard/convoguard/internal/session"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI staff tooling",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing alert triage, session lookup and metrics tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		cfgStore, err := safetyconfig.NewStore(ctx, database)
		if err != nil {
			return fmt.Errorf("loading safety config: %w", err)
		}
		agg, err := metrics.NewAggregator(ctx, database)
		if err != nil {
			return fmt.Errorf("loading metrics: %w", err)
		}

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "convoguard MCP server started on stdio (data=%s)\n", cfg.DataDir)

		srv := mcpserver.NewServer(alerts.NewStore(database), session.NewStore(database), agg, cfgStore)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
