// Package access orchestrates the scoring pipeline: travel matrices →
// generalized cost → nested logsum → reach weights → category scores.
package access

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/walkshed/access-cli/internal/ces"
	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/gtc"
	"github.com/walkshed/access-cli/internal/logsum"
	"github.com/walkshed/access-cli/internal/model"
)

// Fetcher supplies travel-leg batches. Satisfied by matrix.Service; tests
// supply a fake.
type Fetcher interface {
	Fetch(ctx context.Context, origins []model.OriginCell, dests []model.Destination, mode model.Mode, period model.Period) (*model.TravelLegBatch, error)
}

// OriginScore holds everything the pipeline derives for one origin cell.
type OriginScore struct {
	OriginID     string             `json:"origin_id"`
	ReachWeights map[string]float64 `json:"reach_weights"`   // by destination ID
	Categories   map[string]float64 `json:"category_scores"` // by category
	Degraded     bool               `json:"degraded"`        // any leg was a fallback estimate
}

// RunResult is the output of one scoring run.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Origins  []OriginScore `json:"origins"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Scorer runs the numeric pipeline over a fetcher and validated parameters.
// It holds no mutable state across calls; everything here is safe for
// concurrent use.
type Scorer struct {
	fetcher Fetcher
	params  *config.Params
	workers int
}

// NewScorer creates a Scorer. Params must already be validated.
func NewScorer(fetcher Fetcher, params *config.Params, workers int) *Scorer {
	if workers <= 0 {
		workers = 4
	}
	return &Scorer{fetcher: fetcher, params: params, workers: workers}
}

// Run scores every origin against the destination set, bounded by the
// configured worker count. Origins are independent, so ordering of results
// matches the input regardless of scheduling.
func (s *Scorer) Run(ctx context.Context, origins []model.OriginCell, dests []model.Destination) (*RunResult, error) {
	runID := uuid.New().String()
	started := time.Now()

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("scoring run started",
		zap.Int("origins", len(origins)),
		zap.Int("destinations", len(dests)),
	)

	for _, d := range dests {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	results := make([]OriginScore, len(origins))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, origin := range origins {
		g.Go(func() error {
			score, err := s.ScoreOrigin(gctx, origin, dests)
			if err != nil {
				return eris.Wrapf(err, "access: origin %s", origin.ID)
			}
			results[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &RunResult{
		RunID:    runID,
		Origins:  results,
		Started:  started,
		Duration: time.Since(started),
	}
	log.Info("scoring run finished", zap.Duration("took", res.Duration))
	return res, nil
}

// ScoreOrigin computes reach weights and category scores for one origin.
func (s *Scorer) ScoreOrigin(ctx context.Context, origin model.OriginCell, dests []model.Destination) (OriginScore, error) {
	legs, degraded, err := s.fetchLegs(ctx, origin, dests)
	if err != nil {
		return OriginScore{}, err
	}

	reach, err := s.reachWeights(origin, dests, legs)
	if err != nil {
		return OriginScore{}, err
	}

	categories := s.categoryScores(dests, reach)

	return OriginScore{
		OriginID:     origin.ID,
		ReachWeights: reach,
		Categories:   categories,
		Degraded:     degraded,
	}, nil
}

// legKey indexes fetched legs by destination, mode, and period.
type legKey struct {
	destID string
	mode   model.Mode
	period model.Period
}

// fetchLegs pulls every mode×period batch for one origin.
func (s *Scorer) fetchLegs(ctx context.Context, origin model.OriginCell, dests []model.Destination) (map[legKey]model.TravelLeg, bool, error) {
	legs := make(map[legKey]model.TravelLeg, len(dests)*len(s.params.Modes)*len(s.params.Slices))
	degraded := false

	for period := range s.params.Slices {
		for modeName := range s.params.Modes {
			mode := model.Mode(modeName)
			batch, err := s.fetcher.Fetch(ctx, []model.OriginCell{origin}, dests, mode, model.Period(period))
			if err != nil {
				return nil, false, eris.Wrapf(err, "access: fetch %s/%s", mode, period)
			}
			for j := range dests {
				leg := batch.Leg(0, j)
				if leg.Degraded {
					degraded = true
				}
				legs[legKey{dests[j].ID, mode, model.Period(period)}] = leg
			}
		}
	}
	return legs, degraded, nil
}

// reachWeights runs GTC → nested logsum per time slice, then combines slices.
// Carry penalties depend on the destination's category, so the chain runs per
// destination.
func (s *Scorer) reachWeights(origin model.OriginCell, dests []model.Destination, legs map[legKey]model.TravelLeg) (map[string]float64, error) {
	reach := make(map[string]float64, len(dests))

	for _, d := range dests {
		cat := s.params.Category[d.Category]

		perSlice := make(map[model.Period]float64, len(s.params.Slices))
		for period := range s.params.Slices {
			costs := make(map[model.Mode]gtc.Cost, len(s.params.Modes))
			for modeName, mp := range s.params.Modes {
				mode := model.Mode(modeName)
				leg, ok := legs[legKey{d.ID, mode, model.Period(period)}]
				if !ok {
					continue
				}
				cost, err := gtc.Compute(leg, mp, s.params.VOT[period], gtc.CarryPenalty(cat, mode))
				if err != nil {
					return nil, err
				}
				costs[mode] = cost
			}

			w, err := logsum.Accessibility(costs, s.params)
			if err != nil {
				return nil, eris.Wrapf(err, "access: %s→%s %s", origin.ID, d.ID, period)
			}
			perSlice[model.Period(period)] = w
		}

		reach[d.ID] = logsum.ReachWeight(perSlice, s.params.Slices)
	}
	return reach, nil
}

// categoryScores aggregates quality × reach weight within each category.
func (s *Scorer) categoryScores(dests []model.Destination, reach map[string]float64) map[string]float64 {
	type catInput struct {
		values []float64
		mass   map[string]float64
	}
	byCat := make(map[string]*catInput)

	for _, d := range dests {
		v := d.Quality * reach[d.ID]
		in, ok := byCat[d.Category]
		if !ok {
			in = &catInput{mass: make(map[string]float64)}
			byCat[d.Category] = in
		}
		in.values = append(in.values, v)
		in.mass[d.Subtype] += v
	}

	scores := make(map[string]float64, len(byCat))
	for cat, in := range byCat {
		cp, ok := s.params.Category[cat]
		if !ok {
			zap.L().Warn("access: category without parameters, skipping", zap.String("category", cat))
			continue
		}
		kappa, _ := cp.ResolveKappa() // validated at load time
		scores[cat] = ces.Score(in.values, in.mass, cp.Rho, kappa, cp.DiversityBonus)
	}
	return scores
}
