package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dcswatch/servertrack/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "servertrack",
	Short: "Game-server population tracker",
	Long:  "Ingests scraped server listings, enriches them with terrain/era/mode/endpoint classification, tracks server identity across address migrations, and aggregates host clusters and ecosystem stats.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
