// Package osrm provides a client for an OSRM-compatible routing engine
// exposing table (many-to-many) and route (point-to-point) services for the
// car, bike, and foot profiles.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// TableResponse holds a many-to-many duration/distance matrix.
// Durations are seconds, distances meters; a nil entry means no path exists.
type TableResponse struct {
	// Durations[i][j] is the travel time from source i to destination j.
	Durations [][]*float64
	Distances [][]*float64
}

// RouteResponse holds a single point-to-point route.
type RouteResponse struct {
	DurationSec float64
	DistanceM   float64
}

// Client queries an OSRM-compatible engine.
type Client interface {
	// Table computes the many-to-many duration matrix between sources and
	// destinations for the given profile (driving, cycling, walking).
	Table(ctx context.Context, sources, dests []LatLng, profile string) (*TableResponse, error)

	// Route computes one point-to-point route.
	Route(ctx context.Context, from, to LatLng, profile string) (*RouteResponse, error)

	// MaxTableDim is the engine's hard limit on table matrix dimension
	// (max(len(sources), len(dests)) per call).
	MaxTableDim() int
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit for engine calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)) }
}

// WithMaxTableDim overrides the engine's table dimension limit.
func WithMaxTableDim(dim int) Option {
	return func(c *client) { c.maxTableDim = dim }
}

type client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxTableDim int
}

// NewClient creates an OSRM client for the given base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(20, 20),
		maxTableDim: 100,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) MaxTableDim() int {
	return c.maxTableDim
}

// tableAPIResponse is the raw OSRM table service response.
type tableAPIResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

func (c *client) Table(ctx context.Context, sources, dests []LatLng, profile string) (*TableResponse, error) {
	if len(sources) == 0 || len(dests) == 0 {
		return &TableResponse{}, nil
	}
	if len(sources) > c.maxTableDim || len(dests) > c.maxTableDim {
		return nil, eris.Errorf("osrm: table request %dx%d exceeds engine limit %d",
			len(sources), len(dests), c.maxTableDim)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osrm: rate limit")
	}

	// Coordinates are all sources followed by all destinations; the
	// sources/destinations params select by index.
	coords := make([]string, 0, len(sources)+len(dests))
	srcIdx := make([]string, 0, len(sources))
	dstIdx := make([]string, 0, len(dests))
	for i, p := range sources {
		coords = append(coords, formatCoord(p))
		srcIdx = append(srcIdx, strconv.Itoa(i))
	}
	for j, p := range dests {
		coords = append(coords, formatCoord(p))
		dstIdx = append(dstIdx, strconv.Itoa(len(sources)+j))
	}

	params := url.Values{
		"sources":      {strings.Join(srcIdx, ";")},
		"destinations": {strings.Join(dstIdx, ";")},
		"annotations":  {"duration,distance"},
	}
	reqURL := fmt.Sprintf("%s/table/v1/%s/%s?%s",
		c.baseURL, profile, strings.Join(coords, ";"), params.Encode())

	var apiResp tableAPIResponse
	if err := c.getJSON(ctx, reqURL, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Code != "Ok" {
		return nil, eris.Errorf("osrm: table returned code %s: %s", apiResp.Code, apiResp.Message)
	}
	if len(apiResp.Durations) != len(sources) {
		return nil, eris.Errorf("osrm: table returned %d rows, want %d", len(apiResp.Durations), len(sources))
	}

	return &TableResponse{Durations: apiResp.Durations, Distances: apiResp.Distances}, nil
}

// routeAPIResponse is the raw OSRM route service response.
type routeAPIResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

func (c *client) Route(ctx context.Context, from, to LatLng, profile string) (*RouteResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osrm: rate limit")
	}

	reqURL := fmt.Sprintf("%s/route/v1/%s/%s;%s?overview=false",
		c.baseURL, profile, formatCoord(from), formatCoord(to))

	var apiResp routeAPIResponse
	if err := c.getJSON(ctx, reqURL, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Code != "Ok" || len(apiResp.Routes) == 0 {
		return nil, eris.Errorf("osrm: route returned code %s: %s", apiResp.Code, apiResp.Message)
	}

	return &RouteResponse{
		DurationSec: apiResp.Routes[0].Duration,
		DistanceM:   apiResp.Routes[0].Distance,
	}, nil
}

func (c *client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "osrm: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "osrm: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "osrm: read body")
	}

	if resp.StatusCode != http.StatusOK {
		return statusErr(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "osrm: parse response")
	}
	return nil
}

// formatCoord renders lon,lat as OSRM expects.
func formatCoord(p LatLng) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}
