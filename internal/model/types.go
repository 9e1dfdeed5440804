// Package model defines the core reference and derived data types shared
// across the accessibility pipeline: origin cells, destinations, travel legs,
// and the keys that index them.
package model

import (
	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
)

// Mode is a travel mode understood by the routing matrix service.
type Mode string

const (
	ModeCar     Mode = "car"
	ModeBike    Mode = "bike"
	ModeFoot    Mode = "foot"
	ModeTransit Mode = "transit"
)

// AllModes lists every supported mode in canonical order.
var AllModes = []Mode{ModeCar, ModeBike, ModeFoot, ModeTransit}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCar, ModeBike, ModeFoot, ModeTransit:
		return Mode(s), nil
	}
	return "", eris.Errorf("model: unknown mode %q", s)
}

// Period identifies a time slice (e.g. "am_peak", "midday"). The valid set is
// defined by the configured slice weights, not hardcoded here.
type Period string

// OriginCell is an immutable origin location: a spatial cell with its centroid.
type OriginCell struct {
	ID  string  `json:"id"` // S2 cell token
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LatLng returns the centroid as an s2.LatLng.
func (c OriginCell) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

// Destination is an immutable point of interest with an externally supplied
// quality score in [0,100].
type Destination struct {
	ID       string  `json:"id"`
	CellID   string  `json:"cell_id"`
	Category string  `json:"category"`
	Subtype  string  `json:"subtype"`
	Quality  float64 `json:"quality"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// LatLng returns the destination location as an s2.LatLng.
func (d Destination) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(d.Lat, d.Lng)
}

// Validate checks invariants on reference data before any computation.
func (d Destination) Validate() error {
	if d.ID == "" {
		return eris.New("model: destination missing id")
	}
	if d.Quality < 0 || d.Quality > 100 {
		return eris.Errorf("model: destination %s quality %.2f outside [0,100]", d.ID, d.Quality)
	}
	return nil
}

// TravelLeg holds one mode's raw travel attributes for an origin→destination
// pair in one time slice. Unreachable pairs carry Reachable=false; their
// numeric fields are meaningless and must not be read. Degraded marks
// great-circle fallback estimates produced when the routing engine was
// unavailable.
type TravelLeg struct {
	OriginID       string  `json:"origin_id"`
	DestID         string  `json:"dest_id"`
	Mode           Mode    `json:"mode"`
	Period         Period  `json:"period"`
	InVehicleMin   float64 `json:"in_vehicle_min"`
	WaitMin        float64 `json:"wait_min"`
	WalkMin        float64 `json:"walk_min"`
	Transfers      int     `json:"transfers"`
	FareUSD        float64 `json:"fare_usd"`
	ReliabilityVar float64 `json:"reliability_var"`
	Reachable      bool    `json:"reachable"`
	Degraded       bool    `json:"degraded"`
}

// TravelLegBatch is the result of one matrix fetch. Legs are ordered
// row-major: all destinations for the first origin, then the second, etc.
type TravelLegBatch struct {
	Mode    Mode        `json:"mode"`
	Period  Period      `json:"period"`
	Origins int         `json:"origins"`
	Dests   int         `json:"dests"`
	Legs    []TravelLeg `json:"legs"`
}

// Leg returns the leg for the i-th origin and j-th destination.
func (b *TravelLegBatch) Leg(i, j int) TravelLeg {
	return b.Legs[i*b.Dests+j]
}

// ODKey indexes a reach weight by origin and destination.
type ODKey struct {
	OriginID string
	DestID   string
}
