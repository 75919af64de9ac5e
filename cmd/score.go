package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/unmappedos-sys/unmappedos/internal/intel"
)

var scoreCmd = &cobra.Command{
	Use:   "score <zone-id>",
	Short: "Recompute one zone's confidence and print the factor breakdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		engineCfg, err := loadEngineConfig()
		if err != nil {
			return err
		}

		svc := intel.NewService(st, engineCfg)
		state, factors, err := svc.ScoreZone(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"state":   state,
			"factors": factors,
		})
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
