// Package ces aggregates destination-level value into bounded category
// scores: a constant-elasticity-of-substitution aggregate with realistic
// diminishing returns, a satiation transform onto [0,100], and an
// entropy-based diversity bonus.
package ces

import (
	"math"

	"github.com/rotisserie/eris"
)

// rhoEpsilon is the explicit threshold below which the CES exponent is
// treated as its limiting case instead of dividing by a near-zero rho.
const rhoEpsilon = 1e-6

// Aggregate computes the CES aggregate V = (Σ_a v_a^ρ)^(1/ρ) over
// per-destination values v_a = Q_a·ReachWeight_a.
//
// ρ→0 uses the geometric-mean limit and ρ→1 the linear sum, each within
// rhoEpsilon. Zero-valued entries are dropped first: an unreachable or
// worthless destination adds nothing, it never annihilates the category.
// An empty or all-zero input yields 0.
func Aggregate(values []float64, rho float64) float64 {
	positive := values[:0:0]
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return 0
	}

	switch {
	case math.Abs(rho) < rhoEpsilon:
		// Geometric mean: exp(mean of logs).
		sumLog := 0.0
		for _, v := range positive {
			sumLog += math.Log(v)
		}
		return math.Exp(sumLog / float64(len(positive)))

	case math.Abs(rho-1) < rhoEpsilon:
		sum := 0.0
		for _, v := range positive {
			sum += v
		}
		return sum

	default:
		// Log-space accumulation keeps large values and negative rho stable.
		sum := 0.0
		for _, v := range positive {
			sum += math.Exp(rho * math.Log(v))
		}
		return math.Exp(math.Log(sum) / rho)
	}
}

// Satiate maps an unbounded aggregate onto [0,100): S = 100·(1 − exp(−κV)).
// Strictly increasing in V, asymptotic to 100.
func Satiate(v, kappa float64) float64 {
	if v <= 0 {
		return 0
	}
	return 100 * (1 - math.Exp(-kappa*v))
}

// KappaFromAnchor derives the satiation rate reproducing score sAnchor at
// aggregate vAnchor: κ = −ln(1 − S/100) / V.
func KappaFromAnchor(vAnchor, sAnchor float64) (float64, error) {
	if vAnchor <= 0 {
		return 0, eris.Errorf("ces: anchor value %g must be > 0", vAnchor)
	}
	if sAnchor <= 0 || sAnchor >= 100 {
		return 0, eris.Errorf("ces: anchor score %g must be in (0,100)", sAnchor)
	}
	return -math.Log(1-sAnchor/100) / vAnchor, nil
}

// DiversityMultiplier computes a bounded variety bonus from the Shannon
// entropy of quality-weighted subtype shares. Entropy is normalized by
// ln(n) over subtypes with positive mass and mapped linearly into
// [1, 1+maxBonus]. A single-subtype category has zero entropy and no bonus.
func DiversityMultiplier(massBySubtype map[string]float64, maxBonus float64) float64 {
	if maxBonus <= 0 {
		return 1
	}

	total := 0.0
	n := 0
	for _, m := range massBySubtype {
		if m > 0 {
			total += m
			n++
		}
	}
	if n <= 1 || total <= 0 {
		return 1
	}

	entropy := 0.0
	for _, m := range massBySubtype {
		if m <= 0 {
			continue
		}
		p := m / total
		entropy -= p * math.Log(p)
	}

	normalized := entropy / math.Log(float64(n))
	if normalized > 1 {
		normalized = 1 // float noise guard
	}
	return 1 + maxBonus*normalized
}

// Score runs the full category chain: CES aggregate, satiation, diversity.
// The result is capped so the [0,100] bound survives the bonus.
func Score(values []float64, massBySubtype map[string]float64, rho, kappa, maxBonus float64) float64 {
	v := Aggregate(values, rho)
	s := Satiate(v, kappa) * DiversityMultiplier(massBySubtype, maxBonus)
	return math.Min(s, 100)
}
