// Package credstoretest holds the behaviour every credstore.Backend must
// share, so each driver's tests can run the same checks.
package credstoretest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
)

// PairFunc returns two Backend instances over the same storage, as two
// processes (or tabs) would see it.
type PairFunc func(t *testing.T) (a, b credstore.Backend)

// Recorder collects keys delivered to a subscription.
type Recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *Recorder) Record(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// RunBackendTests exercises the Backend contract.
func RunBackendTests(t *testing.T, pair PairFunc) {
	t.Run("get missing keys", func(t *testing.T) {
		a, _ := pair(t)
		got, err := a.Get(context.Background(), credstore.Keys)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("set get delete", func(t *testing.T) {
		a, b := pair(t)
		ctx := context.Background()

		require.NoError(t, a.Set(ctx, map[string]string{
			credstore.KeyAccessToken:  "A1",
			credstore.KeyRefreshToken: "R1",
		}))

		got, err := b.Get(ctx, credstore.Keys)
		require.NoError(t, err)
		require.Equal(t, map[string]string{
			credstore.KeyAccessToken:  "A1",
			credstore.KeyRefreshToken: "R1",
		}, got)

		require.NoError(t, b.Delete(ctx, []string{credstore.KeyAccessToken, credstore.KeyUser}))

		got, err = a.Get(ctx, credstore.Keys)
		require.NoError(t, err)
		require.Equal(t, map[string]string{credstore.KeyRefreshToken: "R1"}, got)
	})

	t.Run("overwrite", func(t *testing.T) {
		a, _ := pair(t)
		ctx := context.Background()

		require.NoError(t, a.Set(ctx, map[string]string{credstore.KeyAccessToken: "A1"}))
		require.NoError(t, a.Set(ctx, map[string]string{credstore.KeyAccessToken: "A2"}))

		got, err := a.Get(ctx, []string{credstore.KeyAccessToken})
		require.NoError(t, err)
		require.Equal(t, "A2", got[credstore.KeyAccessToken])
	})

	t.Run("notifies other instances only", func(t *testing.T) {
		a, b := pair(t)
		ctx := context.Background()

		var fromA, fromB Recorder
		cancelA, err := a.Subscribe(fromA.Record)
		require.NoError(t, err)
		defer cancelA()
		cancelB, err := b.Subscribe(fromB.Record)
		require.NoError(t, err)
		defer cancelB()

		require.NoError(t, a.Set(ctx, map[string]string{credstore.KeyAccessToken: "A1"}))

		require.Eventually(t, func() bool {
			return contains(fromB.Keys(), credstore.KeyAccessToken)
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, a.Delete(ctx, []string{credstore.KeyAccessToken}))

		require.Eventually(t, func() bool {
			return count(fromB.Keys(), credstore.KeyAccessToken) >= 2
		}, 5*time.Second, 10*time.Millisecond)

		// Give any stray self-notification time to arrive.
		time.Sleep(200 * time.Millisecond)
		require.Empty(t, fromA.Keys())
	})

	t.Run("cancel stops delivery", func(t *testing.T) {
		a, b := pair(t)
		ctx := context.Background()

		var rec Recorder
		cancel, err := b.Subscribe(rec.Record)
		require.NoError(t, err)
		cancel()
		cancel()

		require.NoError(t, a.Set(ctx, map[string]string{credstore.KeyUser: "{}"}))
		time.Sleep(200 * time.Millisecond)
		require.Empty(t, rec.Keys())
	})
}

func contains(keys []string, key string) bool {
	return count(keys, key) > 0
}

func count(keys []string, key string) int {
	n := 0
	for _, k := range keys {
		if k == key {
			n++
		}
	}
	return n
}
