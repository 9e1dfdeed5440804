package matrix

import (
	"github.com/golang/geo/s2"

	"github.com/walkshed/access-cli/internal/model"
)

const earthRadiusM = 6371000.0

// circuityFactor inflates straight-line distance toward typical network
// distance. Applied uniformly; fallback legs are flagged degraded so
// downstream consumers never mistake them for routed results.
const circuityFactor = 1.3

// fallbackSpeedKmh is the assumed door-to-door speed per mode when the
// routing engine is unavailable.
var fallbackSpeedKmh = map[model.Mode]float64{
	model.ModeCar:     40,
	model.ModeBike:    14,
	model.ModeFoot:    4.5,
	model.ModeTransit: 22,
}

// transit fallback assumptions: flat boarding fare and average initial wait.
const (
	fallbackTransitWaitMin = 7.0
	fallbackTransitFareUSD = 2.50
)

// greatCircleKm returns the great-circle distance between two points.
func greatCircleKm(from, to s2.LatLng) float64 {
	return from.Distance(to).Radians() * earthRadiusM / 1000
}

// fallbackLeg builds a degraded-confidence travel leg from great-circle
// distance. Always reachable and always finite.
func fallbackLeg(origin model.OriginCell, dest model.Destination, mode model.Mode, period model.Period) model.TravelLeg {
	km := greatCircleKm(origin.LatLng(), dest.LatLng()) * circuityFactor
	minutes := km / fallbackSpeedKmh[mode] * 60

	leg := model.TravelLeg{
		OriginID:     origin.ID,
		DestID:       dest.ID,
		Mode:         mode,
		Period:       period,
		InVehicleMin: minutes,
		Reachable:    true,
		Degraded:     true,
	}
	if mode == model.ModeTransit {
		leg.WaitMin = fallbackTransitWaitMin
		leg.FareUSD = fallbackTransitFareUSD
	}
	return leg
}

// fallbackTile builds a degraded tile batch for every OD pair.
func fallbackTile(origins []model.OriginCell, dests []model.Destination, mode model.Mode, period model.Period) *model.TravelLegBatch {
	legs := make([]model.TravelLeg, 0, len(origins)*len(dests))
	for _, o := range origins {
		for _, d := range dests {
			legs = append(legs, fallbackLeg(o, d, mode, period))
		}
	}
	return &model.TravelLegBatch{
		Mode:    mode,
		Period:  period,
		Origins: len(origins),
		Dests:   len(dests),
		Legs:    legs,
	}
}
