package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dcswatch/servertrack/internal/enrich"
	"github.com/dcswatch/servertrack/internal/ingest"
	"github.com/dcswatch/servertrack/internal/model"
)

var (
	ingestInput     string
	ingestSnapshots bool
	ingestStats     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle from a JSON batch",
	Long:  "Reads a JSON array of scraped server rows, upserts them into the store with enrichment, detects address migrations, and refreshes host clusters (plus snapshots and ecosystem stats when requested). The whole cycle commits atomically.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := loadRows(ingestInput)
		if err != nil {
			return err
		}
		zap.L().Info("loaded batch", zap.String("input", ingestInput), zap.Int("rows", len(rows)))

		rules, err := initRuleset()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ing := ingest.New(st, enrich.New(rules), cfg.Ingest, zap.L())
		res, err := ing.Run(ctx, rows, ingest.RunOptions{
			Snapshots: ingestSnapshots,
			Stats:     ingestStats || ingestSnapshots,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Inserted: %d, Updated: %d, Snapshots: %d, Migrations: %d\n",
			res.Inserted, res.Updated, res.Snapshots, res.Migrations)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestInput, "input", "i", "servers.json", "input JSON file")
	ingestCmd.Flags().BoolVarP(&ingestSnapshots, "snapshot", "s", false, "also create snapshot records")
	ingestCmd.Flags().BoolVar(&ingestStats, "stats", false, "also update ecosystem stats")
	rootCmd.AddCommand(ingestCmd)
}

func loadRows(path string) ([]model.ServerRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch %s", path)
	}
	var rows []model.ServerRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "parse batch %s", path)
	}
	return rows, nil
}
