package ors

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultProfile = "driving-car"
)

// Client talks to OpenRouteService. One client serves three roles:
//   - ports.SequenceClient via the optimization endpoint
//   - ports.DirectionsProvider via the directions endpoint
//   - ports.Geocoder via the geocode search endpoint
//
// Outgoing requests share one rate limiter. The client is safe for
// concurrent use.
type Client struct {
	session      *http.Client
	apiKey       string
	baseURL      string
	profile      string
	country      string
	limiter      *rate.Limiter
	retryBackoff time.Duration
	logger       *zap.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

func WithProfile(p string) Option { return func(c *Client) { c.profile = p } }

// WithCountry restricts geocoding to an ISO country code; "" disables it.
func WithCountry(code string) Option { return func(c *Client) { c.country = code } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.session = h } }

// WithLimiter paces every outgoing request, retries included.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

func WithRetryBackoff(d time.Duration) Option { return func(c *Client) { c.retryBackoff = d } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}

	c := &Client{
		session:      &http.Client{Timeout: 10 * time.Second},
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		profile:      DefaultProfile,
		country:      "US",
		retryBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return c, nil
}

// NewLimiter builds the shared request limiter for perSec requests per
// second; perSec <= 0 means unlimited.
func NewLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}
