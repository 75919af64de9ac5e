package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unmappedos-sys/unmappedos/internal/sweep"
)

var (
	sweepConcurrency int
	sweepRate        float64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one daily decay pass over all zones",
	Long:  "Re-evaluates every zone with a confidence state: applies time decay, lapses expired hazards, and resets the 24h intel counters. Intended to run once a day from cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepConcurrency > 0 {
			cfg.Sweep.Concurrency = sweepConcurrency
		}
		if cmd.Flags().Changed("rate") {
			cfg.Sweep.RatePerSec = sweepRate
		}
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engineCfg, err := loadEngineConfig()
		if err != nil {
			return err
		}

		sw := sweep.New(st, engineCfg,
			sweep.WithConcurrency(cfg.Sweep.Concurrency),
			sweep.WithRateLimit(cfg.Sweep.RatePerSec),
		)
		summary, err := sw.Run(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	sweepCmd.Flags().IntVar(&sweepConcurrency, "concurrency", 0, "zones processed in parallel (overrides config)")
	sweepCmd.Flags().Float64Var(&sweepRate, "rate", 0, "max zone updates per second, 0 disables limiting")
	rootCmd.AddCommand(sweepCmd)
}
