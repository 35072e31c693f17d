package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evgrid/stationd/config"
	"github.com/evgrid/stationd/core/report"
	"github.com/evgrid/stationd/infra/history"
)

var reportDays int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a per-pile operating report from the session archive",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 7, "report window in days")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var store history.Store
	switch cfg.History.Backend {
	case "sqlite":
		store, err = history.NewSQLiteStore(cfg.History.Path)
	default:
		store, err = history.NewJSONLStore(cfg.History.Path)
	}
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer func() { _ = store.Close() }()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -reportDays)
	records, err := store.Query(context.Background(), history.Query{Start: from, End: to})
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	rep := report.Build(records, from, to)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
