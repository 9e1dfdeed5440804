// Package logsum turns per-mode generalized costs into one accessibility
// weight per (origin, destination, time slice) via a two-level nested logit:
// mode utilities are aggregated within correlated-mode nests by a scaled
// log-sum-exp, then nest inclusive values are aggregated at the top level.
package logsum

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/config"
	"github.com/walkshed/access-cli/internal/gtc"
	"github.com/walkshed/access-cli/internal/model"
)

// Utility computes the systematic utility of one reachable mode:
// U = β₀ − α·GTC + γ·comfort.
func Utility(cost gtc.Cost, mp config.ModeParams) (float64, bool) {
	if !cost.Reachable {
		return 0, false
	}
	return mp.Beta0 - mp.Alpha*cost.Minutes + mp.Gamma*mp.Comfort, true
}

// NestInclusiveValue computes η·logΣexp(u/η) over the utilities of one nest.
// The max utility is factored out before exponentiating so arbitrarily large
// spreads stay finite. An empty nest returns -Inf, which the top level
// excludes.
func NestInclusiveValue(utils []float64, eta float64) float64 {
	return logSumExp(utils, eta)
}

// TopLogsum computes μ·logΣexp(iv/μ) over nest inclusive values, skipping
// -Inf sentinels from empty nests. All-empty input returns -Inf.
func TopLogsum(ivs []float64, mu float64) float64 {
	finite := ivs[:0:0]
	for _, iv := range ivs {
		if !math.IsInf(iv, -1) {
			finite = append(finite, iv)
		}
	}
	return logSumExp(finite, mu)
}

// logSumExp computes scale·logΣexp(x/scale) with max-subtraction
// stabilization. Empty input yields -Inf.
func logSumExp(xs []float64, scale float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}

	maxX := xs[0]
	for _, x := range xs[1:] {
		if x > maxX {
			maxX = x
		}
	}

	sum := 0.0
	for _, x := range xs {
		sum += math.Exp((x - maxX) / scale)
	}
	return maxX + scale*math.Log(sum)
}

// Accessibility runs the full chain for one OD pair and one time slice: mode
// utilities → nest inclusive values → top-level logsum → weight. The weight
// is exp(LS/lsScale): non-negative, monotonically increasing in LS, and
// exactly 0 when no mode in any nest is reachable.
func Accessibility(costs map[model.Mode]gtc.Cost, p *config.Params) (float64, error) {
	ivs := make([]float64, len(p.Nests))
	anyReachable := false

	for i, nest := range p.Nests {
		var utils []float64
		for _, m := range nest.Modes {
			cost, ok := costs[model.Mode(m)]
			if !ok {
				continue
			}
			u, reachable := Utility(cost, p.Modes[m])
			if !reachable {
				continue
			}
			utils = append(utils, u)
			anyReachable = true
		}
		ivs[i] = NestInclusiveValue(utils, nest.Scale)
	}

	if !anyReachable {
		return 0, nil
	}

	ls := TopLogsum(ivs, p.Mu)
	w := math.Exp(ls / p.LSScale)

	// Stabilization keeps any finite input finite; a NaN or Inf here is a
	// defect and must abort this key with full context, not be defaulted.
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, eris.Errorf("logsum: non-finite weight (ls=%g scale=%g ivs=%v)", ls, p.LSScale, ivs)
	}
	return w, nil
}
