package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scoreOriginsPath string
	scoreDestsPath   string
	scoreOutPath     string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run the full accessibility scoring pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		origins, err := loadOrigins(scoreOriginsPath)
		if err != nil {
			return err
		}
		dests, err := loadDestinations(scoreDestsPath)
		if err != nil {
			return err
		}

		result, err := e.Scorer.Run(ctx, origins, dests)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		if err := os.WriteFile(scoreOutPath, out, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", scoreOutPath)
		}

		stats := e.Service.Stats()
		zap.L().Info("scoring complete",
			zap.String("run_id", result.RunID),
			zap.String("out", scoreOutPath),
			zap.Int64("cache_hits", stats.CacheHits),
			zap.Int64("cache_misses", stats.CacheMisses),
			zap.Int64("engine_calls", stats.EngineCalls),
			zap.Int64("fallbacks", stats.Fallbacks),
		)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreOriginsPath, "origins", "origins.json", "origin cells JSON file")
	scoreCmd.Flags().StringVar(&scoreDestsPath, "destinations", "destinations.json", "destinations JSON file")
	scoreCmd.Flags().StringVar(&scoreOutPath, "out", "scores.json", "output JSON file")
	rootCmd.AddCommand(scoreCmd)
}
