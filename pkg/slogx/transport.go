package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/stockpanel/pkg/idx"
)

// RequestIDHeader carries the per-request ULID to the backend.
const RequestIDHeader = "X-Request-ID"

// Transport logs every outbound request and tags it with a request ID. The
// request-scoped logger is attached to the request context so lower layers
// log with the same req_id.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, reqID)
	}

	logger := t.logger().With(
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
	)
	r = r.WithContext(WithContext(r.Context(), logger))

	resp, err := t.base().RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
