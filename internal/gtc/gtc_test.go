package gtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/model"
)

func transitParams() config.ModeParams {
	return config.ModeParams{
		ThetaIV:     1.0,
		ThetaWait:   1.8,
		ThetaWalk:   1.6,
		TransferPen: 6,
		ThetaRel:    0.5,
	}
}

func reachableLeg() model.TravelLeg {
	return model.TravelLeg{
		OriginID:       "o1",
		DestID:         "d1",
		Mode:           model.ModeTransit,
		InVehicleMin:   20,
		WaitMin:        5,
		WalkMin:        8,
		Transfers:      1,
		FareUSD:        2.50,
		ReliabilityVar: 4,
		Reachable:      true,
	}
}

func TestCompute_Formula(t *testing.T) {
	cost, err := Compute(reachableLeg(), transitParams(), 15, 0)
	require.NoError(t, err)
	require.True(t, cost.Reachable)

	// 1·20 + 1.8·5 + 1.6·8 + 6·1 + 0.5·4 + 2.50/(15/60)
	want := 20.0 + 9.0 + 12.8 + 6.0 + 2.0 + 10.0
	assert.InDelta(t, want, cost.Minutes, 1e-9)
}

func TestCompute_ZeroFareValid(t *testing.T) {
	leg := reachableLeg()
	leg.FareUSD = 0

	cost, err := Compute(leg, transitParams(), 15, 0)
	require.NoError(t, err)
	assert.InDelta(t, 49.8, cost.Minutes, 1e-9)
}

func TestCompute_Unreachable(t *testing.T) {
	leg := reachableLeg()
	leg.Reachable = false

	cost, err := Compute(leg, transitParams(), 15, 0)
	require.NoError(t, err)
	assert.False(t, cost.Reachable)
}

func TestCompute_NegativeInputsRaise(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.TravelLeg)
	}{
		{"in_vehicle", func(l *model.TravelLeg) { l.InVehicleMin = -1 }},
		{"wait", func(l *model.TravelLeg) { l.WaitMin = -0.5 }},
		{"walk", func(l *model.TravelLeg) { l.WalkMin = -2 }},
		{"transfers", func(l *model.TravelLeg) { l.Transfers = -1 }},
		{"fare", func(l *model.TravelLeg) { l.FareUSD = -0.01 }},
		{"variance", func(l *model.TravelLeg) { l.ReliabilityVar = -3 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			leg := reachableLeg()
			tc.mutate(&leg)

			_, err := Compute(leg, transitParams(), 15, 0)
			assert.Error(t, err)
		})
	}
}

func TestCompute_CarryPenalty(t *testing.T) {
	base, err := Compute(reachableLeg(), transitParams(), 15, 0)
	require.NoError(t, err)

	withCarry, err := Compute(reachableLeg(), transitParams(), 15, 12)
	require.NoError(t, err)

	assert.InDelta(t, base.Minutes+12, withCarry.Minutes, 1e-9)
}

func TestCarryPenalty_CarExempt(t *testing.T) {
	cp := config.CategoryParams{CarryPenaltyMin: 12}
	assert.Equal(t, 0.0, CarryPenalty(cp, model.ModeCar))
	assert.Equal(t, 12.0, CarryPenalty(cp, model.ModeBike))
	assert.Equal(t, 12.0, CarryPenalty(cp, model.ModeTransit))
}

func TestCompute_Monotonic(t *testing.T) {
	leg := reachableLeg()
	base, err := Compute(leg, transitParams(), 15, 0)
	require.NoError(t, err)

	leg.InVehicleMin += 10
	slower, err := Compute(leg, transitParams(), 15, 0)
	require.NoError(t, err)

	assert.Greater(t, slower.Minutes, base.Minutes)
}
