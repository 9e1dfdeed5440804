// Package gtc converts raw travel legs into generalized travel cost: one
// scalar per (origin, destination, mode, time slice) combining in-vehicle
// time, wait, walk, transfers, fare, and reliability variance.
package gtc

import (
	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/model"
)

// Cost is a generalized travel cost in equivalent minutes. Unreachable legs
// carry Reachable=false and a meaningless Minutes; callers must branch on the
// flag, never threshold on magnitude.
type Cost struct {
	Minutes   float64
	Reachable bool
}

// Unreachable is the cost of a leg with no path.
var Unreachable = Cost{}

// Compute transforms one travel leg into generalized cost.
//
//	GTC = θ_iv·iv + θ_wait·wait + θ_walk·walk + δ·transfers
//	    + θ_rel·variance + fare/votPerMin + carryPenaltyMin
//
// votPerHour must be positive (validated at configuration time).
// carryPenaltyMin applies the category's goods-carrying surcharge; the caller
// passes 0 for car legs and for categories without one.
func Compute(leg model.TravelLeg, mp config.ModeParams, votPerHour, carryPenaltyMin float64) (Cost, error) {
	if !leg.Reachable {
		return Unreachable, nil
	}

	// Negative inputs are a data defect upstream, never clamped here.
	if leg.InVehicleMin < 0 || leg.WaitMin < 0 || leg.WalkMin < 0 {
		return Unreachable, eris.Errorf(
			"gtc: negative duration for %s→%s %s (iv=%.2f wait=%.2f walk=%.2f)",
			leg.OriginID, leg.DestID, leg.Mode, leg.InVehicleMin, leg.WaitMin, leg.WalkMin)
	}
	if leg.Transfers < 0 {
		return Unreachable, eris.Errorf("gtc: negative transfer count for %s→%s", leg.OriginID, leg.DestID)
	}
	if leg.FareUSD < 0 {
		return Unreachable, eris.Errorf("gtc: negative fare for %s→%s", leg.OriginID, leg.DestID)
	}
	if leg.ReliabilityVar < 0 {
		return Unreachable, eris.Errorf("gtc: negative reliability variance for %s→%s", leg.OriginID, leg.DestID)
	}

	votPerMin := votPerHour / 60

	minutes := mp.ThetaIV*leg.InVehicleMin +
		mp.ThetaWait*leg.WaitMin +
		mp.ThetaWalk*leg.WalkMin +
		mp.TransferPen*float64(leg.Transfers) +
		mp.ThetaRel*leg.ReliabilityVar +
		leg.FareUSD/votPerMin +
		carryPenaltyMin

	return Cost{Minutes: minutes, Reachable: true}, nil
}

// CarryPenalty returns the extra-minutes surcharge for carrying goods in the
// given category on the given mode. Car trips carry no penalty.
func CarryPenalty(cp config.CategoryParams, mode model.Mode) float64 {
	if mode == model.ModeCar {
		return 0
	}
	return cp.CarryPenaltyMin
}
