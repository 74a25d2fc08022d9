package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statsDate string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the ecosystem snapshot for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		date := statsDate
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stat, err := st.StatsForDate(ctx, date)
		if err != nil {
			return err
		}
		if stat == nil {
			fmt.Printf("No stats recorded for %s\n", date)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stat)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsDate, "date", "", "date (YYYY-MM-DD), defaults to today (UTC)")
	rootCmd.AddCommand(statsCmd)
}
