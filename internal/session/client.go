package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

// Client calls panel API endpoints on behalf of the session.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration // 0 leaves requests to the caller's context

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64

	Logger *slog.Logger
}

// NewClient builds a client whose requests carry auth from a (usually the
// *Manager) and are logged with a request ID.
func NewClient(a Authenticator, cfg ClientConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &Client{
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &Transport{
				Base:    &slogx.Transport{Base: http.DefaultTransport, Logger: cfg.Logger},
				Auth:    a,
				Limiter: limiter,
			},
		},
	}
}

// Do sends method to path with body JSON encoded when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &authsdk.NetworkError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

// GetJSON fetches path and decodes a 2xx body into out. Other statuses
// become *authsdk.APIError.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return authsdk.ParseErrorResponse("GET "+path, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
