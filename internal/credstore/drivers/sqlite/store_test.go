package sqlite

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/internal/credstore/credstoretest"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := NewStore(DSN(path), slogx.Discard())
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	s.PollInterval = 20 * time.Millisecond

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storePair(t *testing.T) (credstore.Backend, credstore.Backend) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	return openStore(t, path), openStore(t, path)
}

func TestSQLiteBackend(t *testing.T) {
	credstoretest.RunBackendTests(t, storePair)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestCredentialStoreOverSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	a := credstore.New(openStore(t, path), slogx.Discard())
	b := credstore.New(openStore(t, path), slogx.Discard())
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, credstore.Bundle{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, a.TouchActivity(ctx, time.UnixMilli(42)))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "A1", got.AccessToken)
	require.Equal(t, int64(42), got.LastActivity.UnixMilli())

	require.NoError(t, b.Clear(ctx))
	got, err = a.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, credstore.Bundle{}, got)
}

func TestDiff(t *testing.T) {
	before := map[string]string{"a": "1", "b": "2", "c": "3"}
	after := map[string]string{"a": "1", "b": "20", "d": "4"}

	got := diff(before, after)
	sort.Strings(got)
	require.Equal(t, []string{"b", "c", "d"}, got)

	require.Empty(t, diff(after, after))
	require.Empty(t, diff(nil, map[string]string{}))
}
