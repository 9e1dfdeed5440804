package config

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/walkshed/access-cli/internal/ces"
	"github.com/walkshed/access-cli/internal/model"
)

// Params holds the behavioral model parameters: generalized-cost coefficients,
// mode utility constants, nest structure, time-slice weights, value of time,
// and per-category aggregation parameters. All of it is externally supplied;
// nothing here is computed.
type Params struct {
	Modes    map[string]ModeParams     `yaml:"modes"`
	Nests    []NestParams              `yaml:"nests"`
	Mu       float64                   `yaml:"mu"`           // top-level logsum scale
	LSScale  float64                   `yaml:"ls_scale"`     // divisor applied to the logsum before exp
	VOT      map[string]float64        `yaml:"vot_per_hour"` // USD/hour by period
	Slices   map[string]float64        `yaml:"slice_weights"`
	Category map[string]CategoryParams `yaml:"categories"`
}

// ModeParams holds per-mode generalized-cost and utility coefficients.
type ModeParams struct {
	ThetaIV     float64 `yaml:"theta_iv"`
	ThetaWait   float64 `yaml:"theta_wait"`
	ThetaWalk   float64 `yaml:"theta_walk"`
	TransferPen float64 `yaml:"transfer_penalty"` // minutes per transfer
	ThetaRel    float64 `yaml:"theta_reliability"`
	Beta0       float64 `yaml:"beta0"`
	Alpha       float64 `yaml:"alpha"`
	Gamma       float64 `yaml:"gamma"`
	Comfort     float64 `yaml:"comfort"`
}

// NestParams groups correlated modes under one scale parameter.
type NestParams struct {
	Name  string   `yaml:"name"`
	Scale float64  `yaml:"scale"` // η, in (0,1]
	Modes []string `yaml:"modes"`
}

// CategoryParams holds CES, satiation, and diversity parameters for one
// destination category. Kappa may be given directly or derived from the
// anchor pair; if both are present Kappa wins.
type CategoryParams struct {
	Rho             float64 `yaml:"rho"`
	Kappa           float64 `yaml:"kappa"`
	AnchorValue     float64 `yaml:"anchor_value"`
	AnchorScore     float64 `yaml:"anchor_score"`
	CarryPenaltyMin float64 `yaml:"carry_penalty_min"` // non-car modes only
	DiversityBonus  float64 `yaml:"diversity_bonus"`   // max multiplier uplift, e.g. 0.2
}

const weightSumTolerance = 1e-9

// LoadParams reads and validates model parameters from a YAML file.
// Validation failures are fatal: no computation may start on bad parameters.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read params %s", path)
	}

	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "config: parse params")
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every parameter invariant up front.
func (p *Params) Validate() error {
	if len(p.Modes) == 0 {
		return eris.New("config: no modes configured")
	}
	for m := range p.Modes {
		if _, err := model.ParseMode(m); err != nil {
			return eris.Wrap(err, "config: modes")
		}
	}
	if p.Mu <= 0 {
		return eris.Errorf("config: top-level scale mu must be > 0, got %g", p.Mu)
	}
	if p.LSScale <= 0 {
		return eris.Errorf("config: ls_scale must be > 0, got %g", p.LSScale)
	}

	// Every configured mode must appear in exactly one nest.
	seen := make(map[string]int)
	for _, n := range p.Nests {
		if n.Scale <= 0 || n.Scale > 1 {
			return eris.Errorf("config: nest %s scale %g outside (0,1]", n.Name, n.Scale)
		}
		if len(n.Modes) == 0 {
			return eris.Errorf("config: nest %s has no modes", n.Name)
		}
		for _, m := range n.Modes {
			if _, ok := p.Modes[m]; !ok {
				return eris.Errorf("config: nest %s references unconfigured mode %s", n.Name, m)
			}
			seen[m]++
		}
	}
	for m := range p.Modes {
		switch seen[m] {
		case 0:
			return eris.Errorf("config: mode %s not assigned to any nest", m)
		case 1:
		default:
			return eris.Errorf("config: mode %s assigned to %d nests", m, seen[m])
		}
	}

	// Value of time must be positive for every period with a slice weight.
	if len(p.Slices) == 0 {
		return eris.New("config: no slice weights configured")
	}
	sum := 0.0
	for period, w := range p.Slices {
		if w < 0 {
			return eris.Errorf("config: slice weight for %s is negative", period)
		}
		sum += w
		vot, ok := p.VOT[period]
		if !ok {
			return eris.Errorf("config: no value of time for period %s", period)
		}
		if vot <= 0 {
			return eris.Errorf("config: value of time for %s must be > 0, got %g", period, vot)
		}
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return eris.Errorf("config: slice weights sum to %g, want 1", sum)
	}

	for name, c := range p.Category {
		if c.Rho >= 1 {
			return eris.Errorf("config: category %s rho %g must be < 1", name, c.Rho)
		}
		kappa, err := c.ResolveKappa()
		if err != nil {
			return eris.Wrapf(err, "config: category %s", name)
		}
		if kappa <= 0 {
			return eris.Errorf("config: category %s kappa %g must be > 0", name, kappa)
		}
		if c.DiversityBonus < 0 {
			return eris.Errorf("config: category %s diversity bonus is negative", name)
		}
		if c.CarryPenaltyMin < 0 {
			return eris.Errorf("config: category %s carry penalty is negative", name)
		}
	}

	return nil
}

// ResolveKappa returns the satiation rate, deriving it from the anchor pair
// when not given directly.
func (c CategoryParams) ResolveKappa() (float64, error) {
	if c.Kappa > 0 {
		return c.Kappa, nil
	}
	return ces.KappaFromAnchor(c.AnchorValue, c.AnchorScore)
}

// Nest resolves a mode name to its nest index, or -1 if unassigned.
func (p *Params) Nest(mode string) int {
	for i, n := range p.Nests {
		for _, m := range n.Modes {
			if m == mode {
				return i
			}
		}
	}
	return -1
}
