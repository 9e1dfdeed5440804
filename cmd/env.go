package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/access"
	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/matrix"
	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/pkg/osrm"
	"github.com/walkshed/access-cli/pkg/otp"
)

// env bundles the wired service graph for commands.
type env struct {
	Service *matrix.Service
	Scorer  *access.Scorer
	Params  *config.Params
	closeFn func() error
}

func (e *env) Close() error {
	if e.closeFn != nil {
		return e.closeFn()
	}
	return nil
}

// initEnv wires clients, cache, matrix service, and scorer from config.
func initEnv(ctx context.Context) (*env, error) {
	params, err := config.LoadParams(cfg.Score.ParamsPath)
	if err != nil {
		return nil, err
	}

	road := osrm.NewClient(cfg.OSRM.BaseURL,
		osrm.WithRateLimit(cfg.OSRM.RateLimitRPS),
		osrm.WithMaxTableDim(cfg.OSRM.MaxTableDim),
		osrm.WithHTTPClient(httpClient(cfg.OSRM.TimeoutSecs)),
	)
	transit := otp.NewClient(cfg.OTP.BaseURL,
		otp.WithRateLimit(cfg.OTP.RateLimitRPS),
		otp.WithNumItineraries(cfg.OTP.NumItins),
		otp.WithHTTPClient(httpClient(cfg.OTP.TimeoutSecs)),
	)

	cache, closer, err := openCache(ctx)
	if err != nil {
		return nil, err
	}

	svc := matrix.NewService(road, transit, cache, cfg.Matrix, cfg.Cache)
	scorer := access.NewScorer(svc, params, cfg.Score.Workers)

	return &env{Service: svc, Scorer: scorer, Params: params, closeFn: closer}, nil
}

// openCache builds the configured cache backend.
func openCache(ctx context.Context) (matrix.Cache, func() error, error) {
	switch cfg.Cache.Driver {
	case "memory", "":
		return matrix.NewMemoryCache(), nil, nil
	case "sqlite":
		c, err := matrix.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "postgres":
		c, err := matrix.NewPostgresCache(ctx, cfg.Cache.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, eris.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

func httpClient(timeoutSecs int) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSecs) * time.Second}
}

// loadOrigins reads an origin-cell JSON array.
func loadOrigins(path string) ([]model.OriginCell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read origins %s", path)
	}
	var origins []model.OriginCell
	if err := json.Unmarshal(data, &origins); err != nil {
		return nil, eris.Wrap(err, "parse origins")
	}
	return origins, nil
}

// loadDestinations reads a destination JSON array.
func loadDestinations(path string) ([]model.Destination, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read destinations %s", path)
	}
	var dests []model.Destination
	if err := json.Unmarshal(data, &dests); err != nil {
		return nil, eris.Wrap(err, "parse destinations")
	}
	return dests, nil
}
