package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultAuthPath is where the panel backend mounts its auth blueprint.
const DefaultAuthPath = "/api/auth"

// SDKClient talks to the panel's auth endpoints. It holds no session state;
// tokens are passed in explicitly so the caller decides where they live.
type SDKClient struct {
	BaseURL    string
	AuthPath   string
	HTTPClient *http.Client
}

// NewSDKClient creates a client for the backend at baseURL using the default
// auth path.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		AuthPath: DefaultAuthPath,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithHTTPClient returns a copy of c that sends requests through hc.
func (c *SDKClient) WithHTTPClient(hc *http.Client) *SDKClient {
	cp := *c
	cp.HTTPClient = hc
	return &cp
}

// Login exchanges credentials for a token pair and profile.
// POST {authBase}/login
func (c *SDKClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, "login", http.MethodPost, "/login", LoginRequest{
		Username: username,
		Password: password,
	}, "")
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON("login", resp, &out); err != nil {
		return nil, err
	}

	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login: missing access_token", ErrMalformedResponse)
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: login: missing user", ErrMalformedResponse)
	}

	return &out, nil
}

// Refresh mints a new access token, sending the refresh token as bearer.
// POST {authBase}/refresh
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: %w", ErrNoToken)
	}

	resp, err := c.doRequest(ctx, "refresh", http.MethodPost, "/refresh", nil, refreshToken)
	if err != nil {
		return nil, err
	}

	var out RefreshResponse
	if err := decodeJSON("refresh", resp, &out); err != nil {
		return nil, err
	}

	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh: missing access_token", ErrMalformedResponse)
	}

	return &out, nil
}

// Validate asks the backend whether the access token is still good. Any
// status other than 200 is reported as an APIError. When accessToken is
// empty no Authorization header is set, which lets an authenticating
// transport supply it.
// GET {authBase}/validate
func (c *SDKClient) Validate(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	resp, err := c.doRequest(ctx, "validate", http.MethodGet, "/validate", nil, accessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if err := decodeJSON("validate", resp, nil); err != nil {
			return nil, err
		}
		return nil, parseErrorResponse("validate", resp.StatusCode, nil)
	}

	var out ValidateResponse
	if err := decodeJSON("validate", resp, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Logout tells the backend the session is over. Callers typically ignore
// the error, the local session is cleared regardless.
// POST {authBase}/logout
func (c *SDKClient) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("logout: %w", ErrNoToken)
	}

	resp, err := c.doRequest(ctx, "logout", http.MethodPost, "/logout", nil, accessToken)
	if err != nil {
		return err
	}

	return decodeJSON("logout", resp, nil)
}
