package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

type item struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

func TestClientGetJSON(t *testing.T) {
	t.Run("authenticated request", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.login(t)
		c := NewClient(h.m, ClientConfig{BaseURL: h.backend.srv.URL + "/", Logger: slogx.Discard()})

		var items []item
		require.NoError(t, c.GetJSON(context.Background(), "/api/items", &items))
		require.Equal(t, []item{{SKU: "A-1", Qty: 3}}, items)
	})

	t.Run("stale token refreshes transparently", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.login(t)
		// The backend moves on; the manager still holds the old token.
		h.backend.issue()

		c := NewClient(h.m, ClientConfig{BaseURL: h.backend.srv.URL, Logger: slogx.Discard()})

		var items []item
		require.NoError(t, c.GetJSON(context.Background(), "/api/items", &items))
		require.Len(t, items, 1)
		require.Equal(t, []string{"login", "items", "refresh", "items"}, h.backend.Calls())
		require.Equal(t, Valid, h.m.State())
	})

	t.Run("rejected refresh expires and surfaces the 401", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.login(t)
		h.backend.set(func(fb *fakeBackend) {
			fb.current = "revoked"
			fb.refreshStatus = http.StatusUnauthorized
		})

		c := NewClient(h.m, ClientConfig{BaseURL: h.backend.srv.URL, Logger: slogx.Discard()})

		err := c.GetJSON(context.Background(), "/api/items", nil)
		require.True(t, authsdk.IsUnauthorized(err))
		require.EqualError(t, err, "Token has expired")
		require.Equal(t, Expired, h.m.State())
		require.Equal(t, int32(1), h.rec.expired.Load())
		require.Equal(t, []string{"login", "items", "refresh"}, h.backend.Calls())
	})

	t.Run("post body survives the retry", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.login(t)
		h.backend.issue()

		c := NewClient(h.m, ClientConfig{BaseURL: h.backend.srv.URL, RateLimit: 100, Logger: slogx.Discard()})

		resp, err := c.Do(context.Background(), http.MethodPost, "/api/items", item{SKU: "B-2", Qty: 1})
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		h.backend.mu.Lock()
		defer h.backend.mu.Unlock()
		require.Equal(t, []string{`{"sku":"B-2","qty":1}`, `{"sku":"B-2","qty":1}`}, h.backend.lastBody)
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		h := newHarness(t, Config{})
		c := NewClient(h.m, ClientConfig{BaseURL: "http://127.0.0.1:1", Logger: slogx.Discard()})

		err := c.GetJSON(context.Background(), "/api/items", nil)
		var netErr *authsdk.NetworkError
		require.True(t, errors.As(err, &netErr))
		require.Equal(t, "GET /api/items", netErr.Op)
	})
}

func TestTokenSource(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		h := newHarness(t, Config{})
		_, err := h.m.TokenSource().Token()
		require.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("current token with expiry", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.login(t)

		tok, err := h.m.TokenSource().Token()
		require.NoError(t, err)
		require.Equal(t, h.m.AccessToken(), tok.AccessToken)
		require.Equal(t, "Bearer", tok.TokenType)
		require.False(t, tok.Expiry.IsZero())
		require.True(t, tok.Valid())
		require.Equal(t, 0, h.backend.Count("refresh"))
	})

	t.Run("near expiry refreshes first", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.backend.set(func(fb *fakeBackend) { fb.accessTTL = time.Minute })
		h.login(t)
		before := h.m.AccessToken()

		tok, err := h.m.TokenSource().Token()
		require.NoError(t, err)
		require.NotEqual(t, before, tok.AccessToken)
		require.Equal(t, 1, h.backend.Count("refresh"))
	})
}
