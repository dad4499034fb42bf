// Package distance resolves driving distance and time between two addresses
// with the Google Distance Matrix API.
package distance

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://maps.googleapis.com/maps/api/distancematrix/json"
	metersPerMile   = 1609.344
	maxResponseSize = 1 << 20
)

// ErrNotFound is returned when the API cannot route between the addresses.
var ErrNotFound = eris.New("distance: no route found")

// Client looks up driving distance and travel time.
type Client interface {
	Lookup(ctx context.Context, origin, destination string) (*Result, error)
}

// Result is one origin → destination route.
type Result struct {
	Miles   float64 `json:"miles"`
	Minutes float64 `json:"minutes"`
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "distance: unexpected status " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles lookups to perSec with a burst of one.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Distance Matrix client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func (c *httpClient) Lookup(ctx context.Context, origin, destination string) (*Result, error) {
	if origin == "" || destination == "" {
		return nil, eris.New("distance: origin and destination are required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "distance: rate limiter")
		}
	}

	q := url.Values{}
	q.Set("origins", origin)
	q.Set("destinations", destination)
	q.Set("mode", "driving")
	q.Set("units", "imperial")
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "distance: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "distance: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, eris.Wrap(err, "distance: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var m matrixResponse
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, eris.Wrap(err, "distance: unmarshal response")
	}
	switch m.Status {
	case "OK":
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, &StatusError{StatusCode: http.StatusTooManyRequests, Body: m.Status}
	default:
		return nil, eris.Errorf("distance: api status %s: %s", m.Status, m.ErrorMessage)
	}
	if len(m.Rows) == 0 || len(m.Rows[0].Elements) == 0 {
		return nil, ErrNotFound
	}
	el := m.Rows[0].Elements[0]
	if el.Status != "OK" {
		return nil, eris.Wrapf(ErrNotFound, "element status %s", el.Status)
	}

	return &Result{
		Miles:   el.Distance.Value / metersPerMile,
		Minutes: el.Duration.Value / 60,
	}, nil
}
