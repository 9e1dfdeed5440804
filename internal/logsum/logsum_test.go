package logsum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/gtc"
	"github.com/walkshed/access-cli/internal/model"
)

func twoNestParams() *config.Params {
	return &config.Params{
		Modes: map[string]config.ModeParams{
			"car":     {Alpha: 0.05},
			"transit": {Alpha: 0.05, Beta0: -0.5},
			"bike":    {Alpha: 0.06},
			"foot":    {Alpha: 0.08},
		},
		Nests: []config.NestParams{
			{Name: "motorized", Scale: 0.7, Modes: []string{"car", "transit"}},
			{Name: "active", Scale: 0.8, Modes: []string{"bike", "foot"}},
		},
		Mu:      1.0,
		LSScale: 1.0,
	}
}

func TestUtility(t *testing.T) {
	mp := config.ModeParams{Beta0: 1.5, Alpha: 0.05, Gamma: 0.2, Comfort: 3}

	u, ok := Utility(gtc.Cost{Minutes: 30, Reachable: true}, mp)
	require.True(t, ok)
	assert.InDelta(t, 1.5-0.05*30+0.2*3, u, 1e-12)

	_, ok = Utility(gtc.Unreachable, mp)
	assert.False(t, ok)
}

func TestNestInclusiveValue_Homogeneity(t *testing.T) {
	// Scaling all utilities and the nest scale by k scales the IV by k.
	utils := []float64{-1.2, -2.7}
	eta := 0.7
	k := 3.5

	iv := NestInclusiveValue(utils, eta)
	scaled := NestInclusiveValue([]float64{k * utils[0], k * utils[1]}, k*eta)
	assert.InDelta(t, k*iv, scaled, 1e-9)
}

func TestNestInclusiveValue_SingleMode(t *testing.T) {
	// A one-element nest collapses to the bare utility at any scale.
	assert.InDelta(t, -2.4, NestInclusiveValue([]float64{-2.4}, 0.7), 1e-12)
	assert.InDelta(t, -2.4, NestInclusiveValue([]float64{-2.4}, 0.3), 1e-12)
}

func TestNestInclusiveValue_Empty(t *testing.T) {
	assert.True(t, math.IsInf(NestInclusiveValue(nil, 0.7), -1))
}

func TestLogSumExp_LargeSpreadStaysFinite(t *testing.T) {
	// A spread well past exp overflow territory must not produce +Inf or NaN.
	iv := NestInclusiveValue([]float64{800, -800, 0}, 1.0)
	require.False(t, math.IsNaN(iv))
	require.False(t, math.IsInf(iv, 0))
	// The max dominates.
	assert.InDelta(t, 800, iv, 1e-6)
}

func TestTopLogsum_SkipsEmptyNests(t *testing.T) {
	withEmpty := TopLogsum([]float64{-1.5, math.Inf(-1)}, 1.0)
	without := TopLogsum([]float64{-1.5}, 1.0)
	assert.Equal(t, without, withEmpty)

	assert.True(t, math.IsInf(TopLogsum([]float64{math.Inf(-1), math.Inf(-1)}, 1.0), -1))
}

func TestAccessibility_AllUnreachableIsZero(t *testing.T) {
	p := twoNestParams()
	costs := map[model.Mode]gtc.Cost{
		model.ModeCar:     gtc.Unreachable,
		model.ModeTransit: gtc.Unreachable,
	}

	w, err := Accessibility(costs, p)
	require.NoError(t, err)
	assert.Equal(t, 0.0, w)
}

func TestAccessibility_MonotoneInCost(t *testing.T) {
	p := twoNestParams()

	fast, err := Accessibility(map[model.Mode]gtc.Cost{
		model.ModeCar: {Minutes: 10, Reachable: true},
	}, p)
	require.NoError(t, err)

	slow, err := Accessibility(map[model.Mode]gtc.Cost{
		model.ModeCar: {Minutes: 40, Reachable: true},
	}, p)
	require.NoError(t, err)

	assert.Greater(t, fast, slow)
	assert.Greater(t, slow, 0.0)
}

func TestAccessibility_ExtraModeNeverHurts(t *testing.T) {
	p := twoNestParams()

	carOnly, err := Accessibility(map[model.Mode]gtc.Cost{
		model.ModeCar: {Minutes: 20, Reachable: true},
	}, p)
	require.NoError(t, err)

	both, err := Accessibility(map[model.Mode]gtc.Cost{
		model.ModeCar:     {Minutes: 20, Reachable: true},
		model.ModeTransit: {Minutes: 35, Reachable: true},
	}, p)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, both, carOnly)
}

func TestAccessibility_HugeUtilitySpread(t *testing.T) {
	p := twoNestParams()

	w, err := Accessibility(map[model.Mode]gtc.Cost{
		model.ModeCar:  {Minutes: 5, Reachable: true},
		model.ModeFoot: {Minutes: 5000, Reachable: true},
	}, p)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(w))
	assert.Greater(t, w, 0.0)
}

func TestReachWeight(t *testing.T) {
	perSlice := map[model.Period]float64{
		"am_peak": 2.0,
		"midday":  1.0,
	}
	weights := map[string]float64{
		"am_peak": 0.3,
		"midday":  0.5,
		"evening": 0.2, // unreachable slice contributes zero
	}

	assert.InDelta(t, 0.3*2.0+0.5*1.0, ReachWeight(perSlice, weights), 1e-12)
}

func TestReachWeight_AllUnreachable(t *testing.T) {
	weights := map[string]float64{"am_peak": 0.5, "midday": 0.5}
	assert.Equal(t, 0.0, ReachWeight(map[model.Period]float64{}, weights))
}
