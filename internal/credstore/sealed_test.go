package credstore_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/cryptox"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newSealer(t *testing.T, material string) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte(material))
	require.NoError(t, err)
	return s
}

func TestSealedBackend(t *testing.T) {
	ctx := context.Background()
	mem := credstore.NewMemory()
	sealed := credstore.NewSealed(mem, newSealer(t, "master key"), slogx.Discard())
	s := credstore.New(sealed, slogx.Discard())

	require.NoError(t, s.Save(ctx, credstore.Bundle{
		AccessToken:  "eyJhbGciOiJIUzI1NiJ9.e30.c2ln",
		RefreshToken: "refresh-secret",
		User:         &authsdk.Profile{ID: "1", Username: "admin"},
	}))
	require.NoError(t, s.TouchActivity(ctx, fixedNow))

	t.Run("values at rest are not plaintext", func(t *testing.T) {
		raw, err := mem.Get(ctx, credstore.Keys)
		require.NoError(t, err)
		require.NotEqual(t, "eyJhbGciOiJIUzI1NiJ9.e30.c2ln", raw[credstore.KeyAccessToken])
		require.NotEqual(t, "refresh-secret", raw[credstore.KeyRefreshToken])
		require.False(t, strings.Contains(raw[credstore.KeyUser], "admin"))
		require.Equal(t, "1700000000000", raw[credstore.KeyLastActivity])
	})

	t.Run("round trip", func(t *testing.T) {
		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, "refresh-secret", got.RefreshToken)
		require.Equal(t, "admin", got.User.Username)
	})

	t.Run("wrong key reads as absent", func(t *testing.T) {
		other := credstore.New(credstore.NewSealed(mem.Peer(), newSealer(t, "another key"), slogx.Discard()), slogx.Discard())
		got, err := other.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, got.AccessToken)
		require.Empty(t, got.RefreshToken)
		require.Nil(t, got.User)
		require.True(t, fixedNow.Equal(got.LastActivity))
	})

	t.Run("values are bound to their key", func(t *testing.T) {
		raw, err := mem.Get(ctx, []string{credstore.KeyRefreshToken})
		require.NoError(t, err)

		// Move the sealed refresh token into the access token slot.
		swapped := mem.Peer()
		require.NoError(t, swapped.Set(ctx, map[string]string{credstore.KeyAccessToken: raw[credstore.KeyRefreshToken]}))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, got.AccessToken)
	})

	t.Run("plaintext leftovers read as absent", func(t *testing.T) {
		require.NoError(t, mem.Set(ctx, map[string]string{credstore.KeyRefreshToken: "plain"}))
		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, got.RefreshToken)
	})
}
