// Package matrix supplies travel-leg batches for origin×destination requests,
// hiding routing-engine batching limits, transient failures, and caching.
package matrix

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/resilience"
	"github.com/walkshed/access-cli/pkg/osrm"
	"github.com/walkshed/access-cli/pkg/otp"
)

// osrmProfile maps travel modes to engine profiles.
var osrmProfile = map[model.Mode]string{
	model.ModeCar:  "driving",
	model.ModeBike: "cycling",
	model.ModeFoot: "walking",
}

// reliabilityFactor estimates travel-time variance as a fraction of the mean
// for modes whose engine reports no variance of its own.
var reliabilityFactor = map[model.Mode]float64{
	model.ModeCar:     0.15,
	model.ModeBike:    0.05,
	model.ModeFoot:    0.02,
	model.ModeTransit: 0.25,
}

// periodDepartures maps time slices to representative departure clock times
// (hour, minute) on the reference day.
var periodDepartures = map[model.Period][2]int{
	"am_peak": {8, 0},
	"midday":  {12, 30},
	"pm_peak": {17, 30},
	"evening": {20, 0},
	"weekend": {11, 0},
}

const transitSearchWindow = 60 * time.Minute

// Stats counts cache and engine outcomes for one service lifetime.
type Stats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	EngineCalls int64 `json:"engine_calls"`
	Fallbacks   int64 `json:"fallbacks"`
}

// Service fetches travel-leg batches, partitioning oversized requests into
// tiles, caching successful tiles, and degrading to great-circle estimates
// when engines stay unavailable through retries.
type Service struct {
	road    osrm.Client
	transit otp.Client
	cache   Cache
	cfg     config.MatrixConfig
	ttl     func(mode string) time.Duration
	retry   resilience.RetryConfig
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	calls     atomic.Int64
	fallbacks atomic.Int64
}

// NewService wires a matrix service. The cache is an injected dependency so
// tests can supply an in-memory fake.
func NewService(road osrm.Client, transit otp.Client, cache Cache, cfg config.MatrixConfig, cacheCfg config.CacheConfig) *Service {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return &Service{
		road:    road,
		transit: transit,
		cache:   cache,
		cfg:     cfg,
		ttl:     cacheCfg.TTL,
		retry:   retry,
		now:     time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRetry overrides the retry policy (tests use zero backoff).
func (s *Service) WithRetry(cfg resilience.RetryConfig) *Service {
	s.retry = cfg
	return s
}

// Stats returns a snapshot of service counters.
func (s *Service) Stats() Stats {
	return Stats{
		CacheHits:   s.hits.Load(),
		CacheMisses: s.misses.Load(),
		EngineCalls: s.calls.Load(),
		Fallbacks:   s.fallbacks.Load(),
	}
}

// Fetch returns the travel-leg batch for origins × dests in one mode and
// period. Legs are ordered row-major over the request order regardless of
// how the request was tiled or which tiles came from cache.
func (s *Service) Fetch(ctx context.Context, origins []model.OriginCell, dests []model.Destination, mode model.Mode, period model.Period) (*model.TravelLegBatch, error) {
	if len(origins) == 0 || len(dests) == 0 {
		return &model.TravelLegBatch{Mode: mode, Period: period}, nil
	}

	full := &model.TravelLegBatch{
		Mode:    mode,
		Period:  period,
		Origins: len(origins),
		Dests:   len(dests),
		Legs:    make([]model.TravelLeg, len(origins)*len(dests)),
	}

	tiles := tilePairs(origins, dests, s.maxTileDim(mode))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxInFlight > 0 {
		g.SetLimit(s.cfg.MaxInFlight)
	}

	for _, t := range tiles {
		g.Go(func() error {
			tileBatch, err := s.fetchTile(gctx, t, mode, period)
			if err != nil {
				return err
			}
			// Disjoint index ranges per tile; no locking needed.
			placeTile(full, t, tileBatch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return full, nil
}

// maxTileDim returns the tiling dimension for a mode. Transit queries are
// per-OD-pair, so tiles only bound the in-flight work unit size.
func (s *Service) maxTileDim(mode model.Mode) int {
	if mode == model.ModeTransit {
		return 10
	}
	return s.road.MaxTableDim()
}

// fetchTile serves one tile from cache or the engine, falling back to
// great-circle estimates when the engine stays down. Only authoritative
// results are cached; a canceled context propagates without a cache write.
func (s *Service) fetchTile(ctx context.Context, t tile, mode model.Mode, period model.Period) (*model.TravelLegBatch, error) {
	key := CacheKey{
		Mode:        mode,
		Period:      period,
		OriginTile:  tileHash(originIDs(t.origins)),
		DestTile:    tileHash(destIDs(t.dests)),
		DataVersion: s.cfg.DataVersion,
	}

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("matrix: cache read failed, querying engine",
			zap.String("key", key.String()), zap.Error(err))
	} else if ok {
		s.hits.Add(1)
		return cached, nil
	}
	s.misses.Add(1)

	batch, err := resilience.DoVal(ctx, s.withRetryLog(mode), func(ctx context.Context) (*model.TravelLegBatch, error) {
		s.calls.Add(1)
		return s.queryEngine(ctx, t, mode, period)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "matrix: fetch canceled")
		}
		if !resilience.IsTransient(err) {
			return nil, err
		}
		// Engine stayed down through retries: degrade, flag, don't cache.
		s.fallbacks.Add(1)
		zap.L().Warn("matrix: engine unavailable, using great-circle fallback",
			zap.String("mode", string(mode)),
			zap.String("period", string(period)),
			zap.Int("origins", len(t.origins)),
			zap.Int("dests", len(t.dests)),
			zap.Error(err),
		)
		return fallbackTile(t.origins, t.dests, mode, period), nil
	}

	if putErr := s.cache.Put(ctx, key, batch, s.ttl(string(mode))); putErr != nil {
		zap.L().Warn("matrix: cache write failed",
			zap.String("key", key.String()), zap.Error(putErr))
	}
	return batch, nil
}

func (s *Service) withRetryLog(mode model.Mode) resilience.RetryConfig {
	cfg := s.retry
	engine := "osrm"
	if mode == model.ModeTransit {
		engine = "otp"
	}
	cfg.OnRetry = resilience.RetryLogger(engine, "tile")
	return cfg
}

// queryEngine issues the actual external call for one tile.
func (s *Service) queryEngine(ctx context.Context, t tile, mode model.Mode, period model.Period) (*model.TravelLegBatch, error) {
	if mode == model.ModeTransit {
		return s.queryTransit(ctx, t, period)
	}
	return s.queryRoad(ctx, t, mode, period)
}

// queryRoad runs one table call against the road engine and normalizes the
// duration matrix to travel legs. A nil matrix entry is a valid no-path
// outcome, recorded as unreachable, never retried within TTL.
func (s *Service) queryRoad(ctx context.Context, t tile, mode model.Mode, period model.Period) (*model.TravelLegBatch, error) {
	sources := make([]osrm.LatLng, len(t.origins))
	for i, o := range t.origins {
		sources[i] = osrm.LatLng{Lat: o.Lat, Lng: o.Lng}
	}
	targets := make([]osrm.LatLng, len(t.dests))
	for j, d := range t.dests {
		targets[j] = osrm.LatLng{Lat: d.Lat, Lng: d.Lng}
	}

	resp, err := s.road.Table(ctx, sources, targets, osrmProfile[mode])
	if err != nil {
		return nil, err
	}

	legs := make([]model.TravelLeg, 0, len(t.origins)*len(t.dests))
	for i, o := range t.origins {
		for j, d := range t.dests {
			leg := model.TravelLeg{
				OriginID: o.ID,
				DestID:   d.ID,
				Mode:     mode,
				Period:   period,
			}
			if dur := resp.Durations[i][j]; dur != nil {
				minutes := *dur / 60
				leg.InVehicleMin = minutes
				leg.ReliabilityVar = reliabilityFactor[mode] * minutes
				leg.Reachable = true
			}
			legs = append(legs, leg)
		}
	}

	return &model.TravelLegBatch{
		Mode:    mode,
		Period:  period,
		Origins: len(t.origins),
		Dests:   len(t.dests),
		Legs:    legs,
	}, nil
}

// queryTransit plans each OD pair in the tile and keeps one representative
// itinerary per pair: best duration, ties broken by fewest transfers.
func (s *Service) queryTransit(ctx context.Context, t tile, period model.Period) (*model.TravelLegBatch, error) {
	window := s.periodWindow(period)

	legs := make([]model.TravelLeg, 0, len(t.origins)*len(t.dests))
	for _, o := range t.origins {
		for _, d := range t.dests {
			itins, err := s.transit.Plan(ctx,
				otp.LatLng{Lat: o.Lat, Lng: o.Lng},
				otp.LatLng{Lat: d.Lat, Lng: d.Lng},
				window,
			)
			if err != nil {
				return nil, err
			}

			leg := model.TravelLeg{
				OriginID: o.ID,
				DestID:   d.ID,
				Mode:     model.ModeTransit,
				Period:   period,
			}
			if len(itins) > 0 {
				best := representative(itins)
				leg.InVehicleMin = best.TransitMin
				leg.WaitMin = best.WaitMin
				leg.WalkMin = best.WalkMin
				leg.Transfers = best.Transfers
				leg.FareUSD = best.FareUSD
				leg.ReliabilityVar = reliabilityFactor[model.ModeTransit] * best.DurationMin
				leg.Reachable = true
			}
			legs = append(legs, leg)
		}
	}

	return &model.TravelLegBatch{
		Mode:    model.ModeTransit,
		Period:  period,
		Origins: len(t.origins),
		Dests:   len(t.dests),
		Legs:    legs,
	}, nil
}

// representative selects the itinerary with the best duration, tie-broken by
// fewest transfers.
func representative(itins []otp.Itinerary) otp.Itinerary {
	best := make([]otp.Itinerary, len(itins))
	copy(best, itins)
	sort.SliceStable(best, func(a, b int) bool {
		if best[a].DurationMin != best[b].DurationMin {
			return best[a].DurationMin < best[b].DurationMin
		}
		return best[a].Transfers < best[b].Transfers
	})
	return best[0]
}

// periodWindow maps a time slice to a departure window on the next day of
// the right kind (weekday for weekday slices, Saturday for weekend).
func (s *Service) periodWindow(period model.Period) otp.Window {
	hm, ok := periodDepartures[period]
	if !ok {
		hm = [2]int{12, 0}
	}

	day := s.now()
	if period == "weekend" {
		for day.Weekday() != time.Saturday {
			day = day.AddDate(0, 0, 1)
		}
	} else {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
	}

	depart := time.Date(day.Year(), day.Month(), day.Day(), hm[0], hm[1], 0, 0, day.Location())
	return otp.Window{Depart: depart, SearchRange: transitSearchWindow}
}
