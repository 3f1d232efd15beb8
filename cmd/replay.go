package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/progress"
	"github.com/convoguard/convoguard/internal/safetyconfig"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild metric counters from the durable event log",
	Long: `Replays the metric event log from scratch and verifies the rebuilt
counters against the incrementally maintained state. The event log is
the source of truth; the counters are a cache.`,
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

		sc := cfgStore.Snapshot().Config
		weights := metrics.Weights{
			Hallucination: sc.HallucinationWeight,
			CriticalAlert: sc.CriticalAlertWeight,
		}
		before := agg.Snapshot(0, weights)

		reporter := progress.NewReporter("Replaying metric events")
		started := false
		err = agg.ReplayWithProgress(ctx, func(done, total int) {
			if !started {
				reporter.Start(total)
				started = true
			}
			reporter.Update(done, "")
		})
		reporter.Finish()
		if err != nil {
			return fmt.Errorf("replaying events: %w", err)
		}

		after := agg.Snapshot(0, weights)
		before.WindowStart, before.WindowEnd = after.WindowStart, after.WindowEnd

		fmt.Printf("Replayed event log:\n")
		fmt.Printf("  Interactions:     %d\n", after.TotalInteractions)
		fmt.Printf("  Alerts:           %d\n", after.TotalAlerts)
		fmt.Printf("  Open review load: %d\n", after.OpenReviewLoad)
		fmt.Printf("  Safety score:     %.1f\n", after.SafetyScore)

		if before == after {
			fmt.Println("Counters consistent with the event log.")
			return nil
		}
		fmt.Println("Counters diverged from the event log; rebuilt state is now authoritative.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
