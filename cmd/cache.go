package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/walkshed/access-cli/internal/matrix"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the travel matrix cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries (sqlite driver only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Cache.Driver != "sqlite" {
			return eris.Errorf("cache purge requires the sqlite driver, got %q", cfg.Cache.Driver)
		}

		c, err := matrix.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		n, err := c.DeleteExpired(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cache purged", zap.Int("deleted", n))
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report cache entry counts (sqlite driver only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Cache.Driver != "sqlite" {
			return eris.Errorf("cache stats requires the sqlite driver, got %q", cfg.Cache.Driver)
		}

		c, err := matrix.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		total, expired, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cache stats",
			zap.Int("entries", total),
			zap.Int("expired", expired),
		)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
