package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/walkshed/access-cli/internal/model"
)

var (
	matrixOriginsPath string
	matrixDestsPath   string
	matrixMode        string
	matrixPeriod      string
	matrixOutPath     string
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Fetch one travel matrix (warms the cache)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode, err := model.ParseMode(matrixMode)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		if _, ok := e.Params.Slices[matrixPeriod]; !ok {
			return eris.Errorf("unknown period %q", matrixPeriod)
		}

		origins, err := loadOrigins(matrixOriginsPath)
		if err != nil {
			return err
		}
		dests, err := loadDestinations(matrixDestsPath)
		if err != nil {
			return err
		}

		batch, err := e.Service.Fetch(ctx, origins, dests, mode, model.Period(matrixPeriod))
		if err != nil {
			return err
		}

		if matrixOutPath != "" {
			out, err := json.MarshalIndent(batch, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal batch")
			}
			if err := os.WriteFile(matrixOutPath, out, 0o644); err != nil {
				return eris.Wrapf(err, "write %s", matrixOutPath)
			}
		}

		stats := e.Service.Stats()
		zap.L().Info("matrix fetched",
			zap.String("mode", matrixMode),
			zap.String("period", matrixPeriod),
			zap.Int("legs", len(batch.Legs)),
			zap.Int64("cache_hits", stats.CacheHits),
			zap.Int64("engine_calls", stats.EngineCalls),
			zap.Int64("fallbacks", stats.Fallbacks),
		)
		return nil
	},
}

func init() {
	matrixCmd.Flags().StringVar(&matrixOriginsPath, "origins", "origins.json", "origin cells JSON file")
	matrixCmd.Flags().StringVar(&matrixDestsPath, "destinations", "destinations.json", "destinations JSON file")
	matrixCmd.Flags().StringVar(&matrixMode, "mode", "foot", "travel mode (car, bike, foot, transit)")
	matrixCmd.Flags().StringVar(&matrixPeriod, "period", "midday", "time slice")
	matrixCmd.Flags().StringVar(&matrixOutPath, "out", "", "optional output JSON file")
	rootCmd.AddCommand(matrixCmd)
}
