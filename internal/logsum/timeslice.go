package logsum

import "github.com/walkshed/access-cli/internal/model"

// ReachWeight combines per-time-slice accessibility weights into the final
// reach weight for an OD pair: Σ_τ weight_τ · access_τ. Slices where the
// destination is unreachable contribute their exact zero; a destination
// unreachable in every slice yields 0.
func ReachWeight(perSlice map[model.Period]float64, sliceWeights map[string]float64) float64 {
	total := 0.0
	for period, w := range sliceWeights {
		total += w * perSlice[model.Period(period)]
	}
	return total
}
