// Package discogs is a client for the two Discogs REST endpoints a sync run
// needs: the user collection (run planning) and the release detail (full
// metadata). Calls are paced by a shared rate limiter so long collection
// walks stay inside the authenticated request allowance.
package discogs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.discogs.com"
	defaultUserAgent = "cratesync/0.1 +https://github.com/crateloft/cratesync"
	defaultTimeout   = 30 * time.Second

	// Discogs allows 60 authenticated requests per minute.
	defaultRPS = 1.0
)

// Config carries the client settings.
type Config struct {
	// Token is the personal access token. Required.
	Token string
	// Username owns the collection to list. Required for Collection calls.
	Username string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// UserAgent identifies the client as Discogs requires.
	UserAgent string
	// RPS is the sustained request rate.
	RPS float64
	// Timeout bounds each HTTP request.
	Timeout time.Duration

	Logger *zap.Logger
}

// Client talks to the Discogs API.
type Client struct {
	baseURL   string
	token     string
	username  string
	userAgent string

	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a client. The token is mandatory, everything else defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discogs: token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		token:     cfg.Token,
		username:  cfg.Username,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:    cfg.Logger.Named("discogs"),
	}, nil
}

// get performs one paced GET and decodes the JSON body into result. Error
// text keeps the HTTP status line so failures classify correctly downstream.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discogs: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("discogs: build request: %w", err)
	}
	req.Header.Set("Authorization", "Discogs token="+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discogs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discogs: status %s for %s", resp.Status, path)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("discogs: decode %s: %w", path, err)
	}
	return nil
}
