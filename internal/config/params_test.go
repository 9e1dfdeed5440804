package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/ces"
)

func validParams() *Params {
	return &Params{
		Modes: map[string]ModeParams{
			"car":     {ThetaIV: 1, Alpha: 0.05},
			"transit": {ThetaIV: 1, ThetaWait: 1.8, Alpha: 0.05},
		},
		Nests: []NestParams{
			{Name: "motorized", Scale: 0.7, Modes: []string{"car", "transit"}},
		},
		Mu:      1.0,
		LSScale: 1.0,
		VOT:     map[string]float64{"am_peak": 18, "midday": 15},
		Slices:  map[string]float64{"am_peak": 0.6, "midday": 0.4},
		Category: map[string]CategoryParams{
			"grocery": {Rho: 0.5, AnchorValue: 5, AnchorScore: 80, CarryPenaltyMin: 12, DiversityBonus: 0.2},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validParams().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no modes", func(p *Params) { p.Modes = nil }},
		{"unknown mode name", func(p *Params) {
			p.Modes["walk"] = p.Modes["car"]
			delete(p.Modes, "car")
			p.Nests[0].Modes = []string{"walk", "transit"}
		}},
		{"mu not positive", func(p *Params) { p.Mu = 0 }},
		{"ls_scale not positive", func(p *Params) { p.LSScale = -1 }},
		{"nest scale zero", func(p *Params) { p.Nests[0].Scale = 0 }},
		{"nest scale above one", func(p *Params) { p.Nests[0].Scale = 1.2 }},
		{"empty nest", func(p *Params) { p.Nests[0].Modes = nil }},
		{"nest references unknown mode", func(p *Params) {
			p.Nests[0].Modes = append(p.Nests[0].Modes, "teleport")
		}},
		{"mode in no nest", func(p *Params) { p.Nests[0].Modes = []string{"car"} }},
		{"mode in two nests", func(p *Params) {
			p.Nests = append(p.Nests, NestParams{Name: "dup", Scale: 0.8, Modes: []string{"car"}})
		}},
		{"no slices", func(p *Params) { p.Slices = nil }},
		{"negative slice weight", func(p *Params) {
			p.Slices = map[string]float64{"am_peak": 1.4, "midday": -0.4}
		}},
		{"slice weights do not sum to one", func(p *Params) { p.Slices["midday"] = 0.5 }},
		{"missing vot for period", func(p *Params) { delete(p.VOT, "midday") }},
		{"nonpositive vot", func(p *Params) { p.VOT["midday"] = 0 }},
		{"rho at one", func(p *Params) {
			c := p.Category["grocery"]
			c.Rho = 1
			p.Category["grocery"] = c
		}},
		{"no kappa and no anchor", func(p *Params) {
			p.Category["grocery"] = CategoryParams{Rho: 0.5}
		}},
		{"anchor score at bound", func(p *Params) {
			p.Category["grocery"] = CategoryParams{Rho: 0.5, AnchorValue: 5, AnchorScore: 100}
		}},
		{"negative diversity bonus", func(p *Params) {
			c := p.Category["grocery"]
			c.DiversityBonus = -0.1
			p.Category["grocery"] = c
		}},
		{"negative carry penalty", func(p *Params) {
			c := p.Category["grocery"]
			c.CarryPenaltyMin = -5
			p.Category["grocery"] = c
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestValidate_WeightSumTolerance(t *testing.T) {
	p := validParams()
	p.Slices = map[string]float64{"am_peak": 0.1, "midday": 0.2}
	for _, period := range []string{"pm_peak", "evening", "weekend"} {
		p.Slices[period] = 0.7 / 3
		p.VOT[period] = 15
	}
	// Rounding error on the thirds stays well inside the tolerance.
	assert.NoError(t, p.Validate())
}

func TestResolveKappa_Direct(t *testing.T) {
	k, err := CategoryParams{Kappa: 0.3}.ResolveKappa()
	require.NoError(t, err)
	assert.Equal(t, 0.3, k)
}

func TestResolveKappa_FromAnchor(t *testing.T) {
	k, err := CategoryParams{AnchorValue: 5, AnchorScore: 80}.ResolveKappa()
	require.NoError(t, err)

	// Satiation at the anchor value must reproduce the anchor score.
	assert.InDelta(t, 80, 100*(1-math.Exp(-k*5)), 1e-9)

	// The derivation is the ces one, not a second formula.
	want, err := ces.KappaFromAnchor(5, 80)
	require.NoError(t, err)
	assert.Equal(t, want, k)
}

func TestResolveKappa_DirectWinsOverAnchor(t *testing.T) {
	k, err := CategoryParams{Kappa: 0.25, AnchorValue: 5, AnchorScore: 80}.ResolveKappa()
	require.NoError(t, err)
	assert.Equal(t, 0.25, k)
}

func TestNestLookup(t *testing.T) {
	p := validParams()
	assert.Equal(t, 0, p.Nest("car"))
	assert.Equal(t, -1, p.Nest("teleport"))
}

func TestLoadParams(t *testing.T) {
	doc := `
modes:
  car:
    theta_iv: 1.0
    alpha: 0.05
  transit:
    theta_iv: 1.0
    theta_wait: 1.8
    alpha: 0.05
nests:
  - name: motorized
    scale: 0.7
    modes: [car, transit]
mu: 1.0
ls_scale: 1.0
vot_per_hour:
  am_peak: 18
  midday: 15
slice_weights:
  am_peak: 0.6
  midday: 0.4
categories:
  grocery:
    rho: 0.5
    anchor_value: 5
    anchor_score: 80
    carry_penalty_min: 12
    diversity_bonus: 0.2
`
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.8, p.Modes["transit"].ThetaWait, 1e-12)
	assert.Len(t, p.Nests, 1)
	assert.InDelta(t, 0.5, p.Category["grocery"].Rho, 1e-12)
}

func TestLoadParams_MissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadParams_InvalidRejected(t *testing.T) {
	doc := `
modes:
  car: {theta_iv: 1.0}
nests:
  - name: solo
    scale: 1.5
    modes: [car]
mu: 1.0
ls_scale: 1.0
vot_per_hour: {am_peak: 18}
slice_weights: {am_peak: 1.0}
`
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := LoadParams(path)
	assert.Error(t, err)
}
