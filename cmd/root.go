package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unmappedos-sys/unmappedos/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "unmapped",
	Short: "Zone confidence engine for crowd-sourced travel intel",
	Long:  "Ingests crowd reports about geographic zones, weights them by submitter trust, and maintains a decaying confidence score, level, and operational state per zone.",
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
