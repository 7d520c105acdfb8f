package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"outreach/internal/app"
	"outreach/internal/db"
	"outreach/internal/repository"
	"outreach/internal/stats"
	"outreach/internal/tracker"
)

var (
	statsDates []string
	statsAll   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print engagement stats",
	Long:  `Print sent/opened/replied counts for the given dates, or for all history.`,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringSliceVarP(&statsDates, "date", "d", nil, "date to report (YYYY-MM-DD), repeatable")
	statsCmd.Flags().BoolVarP(&statsAll, "all", "a", false, "report over all history")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := app.SetupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	tracking := repository.NewTrackingRepository(database.DB)
	fallback := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.Timeout)
	aggregator := stats.NewAggregator(tracking, fallback, logger)

	if !statsAll && len(statsDates) == 0 {
		return fmt.Errorf("specify --date or --all")
	}

	summary, err := aggregator.Aggregate(statsDates, statsAll)
	if err != nil {
		return err
	}

	fmt.Printf("Sent:    %d\n", summary.Sent)
	fmt.Printf("Opened:  %d (%.1f%%)\n", summary.Opened, summary.OpenRate)
	fmt.Printf("Replied: %d (%.1f%%)\n", summary.Replied, summary.ReplyRate)
	return nil
}
