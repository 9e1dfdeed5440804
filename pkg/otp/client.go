// Package otp provides a client for an OpenTripPlanner-compatible transit
// trip-planning engine returning itineraries with walk/wait/in-vehicle time,
// transfer, and fare breakdowns over a departure time window.
package otp

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

	"github.com/walkshed/access-cli/internal/resilience"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Window is the departure time window an itinerary query covers.
type Window struct {
	Depart      time.Time
	SearchRange time.Duration
}

// Itinerary is one transit trip option for an OD pair.
type Itinerary struct {
	DurationMin float64
	WalkMin     float64
	WaitMin     float64
	TransitMin  float64
	Transfers   int
	FareUSD     float64
}

// Client queries a trip-planning engine.
type Client interface {
	// Plan returns candidate itineraries from one origin to one destination
	// departing within the window. An empty slice means no transit path.
	Plan(ctx context.Context, from, to LatLng, window Window) ([]Itinerary, error)
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

// WithNumItineraries sets how many itineraries to request per query.
func WithNumItineraries(n int) Option {
	return func(c *client) { c.numItins = n }
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	numItins   int
}

// NewClient creates a trip-planner client for the given router base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		numItins:   3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// planAPIResponse is the raw plan endpoint response.
type planAPIResponse struct {
	Plan struct {
		Itineraries []struct {
			Duration    float64 `json:"duration"` // seconds
			WalkTime    float64 `json:"walkTime"`
			WaitingTime float64 `json:"waitingTime"`
			TransitTime float64 `json:"transitTime"`
			Transfers   int     `json:"transfers"`
			Fare        struct {
				Fare struct {
					Regular struct {
						Cents int `json:"cents"`
					} `json:"regular"`
				} `json:"fare"`
			} `json:"fare"`
		} `json:"itineraries"`
	} `json:"plan"`
	Error struct {
		ID  int    `json:"id"`
		Msg string `json:"msg"`
	} `json:"error"`
}

// otp error id 404: PATH_NOT_FOUND — a valid no-path outcome, not a failure.
const errPathNotFound = 404

func (c *client) Plan(ctx context.Context, from, to LatLng, window Window) ([]Itinerary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "otp: rate limit")
	}

	params := url.Values{
		"fromPlace":      {formatPlace(from)},
		"toPlace":        {formatPlace(to)},
		"date":           {window.Depart.Format("2006-01-02")},
		"time":           {window.Depart.Format("15:04")},
		"mode":           {"TRANSIT,WALK"},
		"numItineraries": {strconv.Itoa(c.numItins)},
		"searchWindow":   {strconv.Itoa(int(window.SearchRange.Seconds()))},
	}
	reqURL := c.baseURL + "/plan?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "otp: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "otp: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "otp: read body")
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		planErr := eris.Errorf("otp: engine returned status %d: %s", resp.StatusCode, snippet)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(planErr, resp.StatusCode)
		}
		return nil, planErr
	}

	var apiResp planAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, eris.Wrap(err, "otp: parse response")
	}

	if apiResp.Error.ID == errPathNotFound {
		return nil, nil
	}
	if apiResp.Error.ID != 0 {
		return nil, eris.Errorf("otp: plan error %d: %s", apiResp.Error.ID, apiResp.Error.Msg)
	}

	itins := make([]Itinerary, 0, len(apiResp.Plan.Itineraries))
	for _, it := range apiResp.Plan.Itineraries {
		itins = append(itins, Itinerary{
			DurationMin: it.Duration / 60,
			WalkMin:     it.WalkTime / 60,
			WaitMin:     it.WaitingTime / 60,
			TransitMin:  it.TransitTime / 60,
			Transfers:   it.Transfers,
			FareUSD:     float64(it.Fare.Fare.Regular.Cents) / 100,
		})
	}
	return itins, nil
}

func formatPlace(p LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
