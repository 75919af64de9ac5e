package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List and manage zones",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		zones, err := st.ListZones(cmd.Context(), 500)
		if err != nil {
			return err
		}

		ids := make([]string, len(zones))
		for i, z := range zones {
			ids[i] = z.ID
		}
		states, err := st.ListStates(cmd.Context(), ids)
		if err != nil {
			return err
		}

		out := make([]model.ZoneSummary, len(zones))
		for i, z := range zones {
			out[i] = model.ZoneSummary{Zone: z, Confidence: states[z.ID]}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var (
	zoneName string
	zoneLat  float64
	zoneLng  float64
)

var zonesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new zone",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		zone := model.Zone{
			ID:        uuid.NewString(),
			Name:      zoneName,
			CreatedAt: time.Now().UTC(),
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			zone.Centroid = geom.NewPointFlat(geom.XY, []float64{zoneLng, zoneLat})
		}

		if err := st.CreateZone(cmd.Context(), zone); err != nil {
			return err
		}
		zap.L().Info("zone created", zap.String("zone_id", zone.ID), zap.String("name", zone.Name))
		return nil
	},
}

func init() {
	zonesAddCmd.Flags().StringVar(&zoneName, "name", "", "zone display name")
	zonesAddCmd.Flags().Float64Var(&zoneLat, "lat", 0, "centroid latitude")
	zonesAddCmd.Flags().Float64Var(&zoneLng, "lng", 0, "centroid longitude")
	_ = zonesAddCmd.MarkFlagRequired("name")

	zonesCmd.AddCommand(zonesAddCmd)
	rootCmd.AddCommand(zonesCmd)
}
