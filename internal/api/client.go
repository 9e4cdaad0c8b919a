// Package api is the HTTP client for the streaming service's REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/session"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://api.streamservice.example/v1"
	DefaultAuthURL  = "https://auth.streamservice.example/v1/oauth2"
	DefaultImageURL = "https://resources.streamservice.example/images"

	// DefaultTimeout is the single timeout shared by every network call.
	DefaultTimeout = 30 * time.Second

	DefaultRequestsPerSecond = 5.0

	pageSize     = 100
	coverSize    = 1280
	maxCoverSize = 20 << 20
)

// ErrRateLimited is returned when the service answers 429.
var ErrRateLimited = errors.New("rate limited: too many requests")

// Config holds the service endpoints.
type Config struct {
	BaseURL           string
	AuthURL           string
	ImageURL          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to the service on behalf of the shared session. It reads the
// bearer token from the session on every request and never changes it.
type Client struct {
	baseURL    string
	authURL    string
	imageURL   string
	sess       *session.Session
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client. Zero config fields take their defaults.
func New(cfg Config, sess *session.Session, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.ImageURL == "" {
		cfg.ImageURL = DefaultImageURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		authURL:  strings.TrimSuffix(cfg.AuthURL, "/"),
		imageURL: strings.TrimSuffix(cfg.ImageURL, "/"),
		sess:     sess,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:      log.With("component", "api"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the client used for API calls, for collaborators that
// must share its timeout.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// get performs an authenticated GET against the API and decodes the JSON
// response into out. raw, if non-nil, receives the undecoded body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if cc := c.sess.Profile().CountryCode; cc != "" {
		params.Set("countryCode", cc)
	}

	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if auth := c.sess.Authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
	}
	return body, nil
}

// do waits for the limiter, executes req and maps error statuses.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, media.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, media.ErrNotAvailable
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, snippet(body))
	}
	return body, nil
}

// snippet returns the start of an error body for messages.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
