package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/report"
	"github.com/convoguard/convoguard/internal/safetyconfig"
)

var (
	reportOut    string
	reportWindow int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an HTML safety report",
	Long:  `Builds a safety report (metrics snapshot, open triage queue, active safety configuration) and writes it as a standalone HTML page.`,
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

		var window time.Duration
		if reportWindow > 0 {
			window = time.Duration(reportWindow) * time.Hour
		}

		gen := report.NewGenerator(agg, alerts.NewStore(database), cfgStore)
		data, err := gen.Gather(ctx, window)
		if err != nil {
			return fmt.Errorf("gathering report data: %w", err)
		}
		if err := report.WriteHTML(data, reportOut); err != nil {
			return err
		}

		fmt.Printf("Safety report written to %s (%d open alerts, safety score %.1f)\n",
			reportOut, len(data.OpenAlerts), data.Metrics.SafetyScore)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "safety-report.html", "output file path")
	reportCmd.Flags().IntVar(&reportWindow, "window-hours", 0, "metrics window in hours (0 = all time)")
	rootCmd.AddCommand(reportCmd)
}
