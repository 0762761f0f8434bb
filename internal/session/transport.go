package session

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/stockpanel/pkg/idx"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

// Authenticator supplies bearer tokens to Transport. *Manager implements it.
type Authenticator interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

// Transport adds the session's bearer token to every request. A 401 gets
// exactly one refresh and one retry with the new token; if the refresh
// fails the 401 is returned as it came, the manager having already expired
// the session.
type Transport struct {
	Base http.RoundTripper
	Auth Authenticator

	// Limiter, when set, paces every attempt including retries.
	Limiter *rate.Limiter
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// Keep the body replayable for the retry.
	getBody := req.GetBody
	body := req.Body
	if body != nil && body != http.NoBody && getBody == nil {
		data, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			return nil, err
		}
		getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
		body, _ = getBody()
	}

	// Both attempts share one request ID.
	reqID := req.Header.Get(slogx.RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
	}

	token := t.Auth.AccessToken()
	resp, err := t.attempt(req, body, reqID, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}

	logger := slogx.FromContext(ctx).With("req_id", reqID)

	if err := t.Auth.Refresh(ctx); err != nil {
		logger.Debug("refresh after 401 failed", "error", err)
		return resp, nil
	}

	var retryBody io.ReadCloser
	if getBody != nil {
		if retryBody, err = getBody(); err != nil {
			return resp, nil
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	logger.Debug("retrying after refresh", "method", req.Method, "path", req.URL.Path)
	return t.attempt(req, retryBody, reqID, t.Auth.AccessToken())
}

func (t *Transport) attempt(req *http.Request, body io.ReadCloser, reqID, token string) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			if body != nil {
				_ = body.Close()
			}
			return nil, err
		}
	}

	r := req.Clone(req.Context())
	r.Body = body
	r.Header.Set(slogx.RequestIDHeader, reqID)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	return t.base().RoundTrip(r)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
