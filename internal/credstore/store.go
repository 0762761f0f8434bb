// Package credstore persists the session bundle (tokens, profile snapshot,
// activity stamp) in storage that several panel instances share.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
)

// Storage keys. Each field of a Bundle lives under its own key so that
// independent writers (e.g. an activity stamp) never rewrite the tokens.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
	KeyLastActivity = "last_activity"
)

// Keys lists every key the store owns.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser, KeyLastActivity}

var ErrClosed = errors.New("credstore: closed")

// Backend is a string key/value store shared between panel instances.
//
// Subscribe delivers the key of every mutation made through another Backend
// instance over the same storage. Mutations made through the subscribing
// instance itself are not reported. Listeners run on a background goroutine.
type Backend interface {
	// Get returns the values for keys that exist. Missing keys are absent
	// from the result.
	Get(ctx context.Context, keys []string) (map[string]string, error)

	// Set writes all values as one unit.
	Set(ctx context.Context, values map[string]string) error

	// Delete removes keys as one unit. Missing keys are ignored.
	Delete(ctx context.Context, keys []string) error

	Subscribe(fn func(key string)) (cancel func(), err error)

	Close() error
}

// Bundle is the persisted session state.
type Bundle struct {
	AccessToken  string
	RefreshToken string
	User         *authsdk.Profile

	// LastActivity is the last user interaction. Zero means never recorded.
	LastActivity time.Time
}

// Usable reports whether the bundle can back a session. Anything short of
// an access token plus a profile is treated as no session at all.
func (b Bundle) Usable() bool {
	return b.AccessToken != "" && b.User != nil
}

// Store encodes Bundles onto a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Load reads the bundle. A field that is missing or cannot be parsed comes
// back as its zero value; only backend failures are errors.
func (s *Store) Load(ctx context.Context) (Bundle, error) {
	values, err := s.backend.Get(ctx, Keys)
	if err != nil {
		return Bundle{}, err
	}

	b := Bundle{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}

	if raw, ok := values[KeyUser]; ok && raw != "" {
		var p authsdk.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn("ignoring unparseable stored user", "error", err)
		} else {
			b.User = &p
		}
	}

	if raw, ok := values[KeyLastActivity]; ok && raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.logger.Warn("ignoring unparseable activity stamp", "value", raw)
		} else {
			b.LastActivity = time.UnixMilli(ms)
		}
	}

	return b, nil
}

// Save writes the fields that are set on b and leaves the others untouched.
func (s *Store) Save(ctx context.Context, b Bundle) error {
	values := make(map[string]string, len(Keys))

	if b.AccessToken != "" {
		values[KeyAccessToken] = b.AccessToken
	}
	if b.RefreshToken != "" {
		values[KeyRefreshToken] = b.RefreshToken
	}
	if b.User != nil {
		raw, err := json.Marshal(b.User)
		if err != nil {
			return err
		}
		values[KeyUser] = string(raw)
	}
	if !b.LastActivity.IsZero() {
		values[KeyLastActivity] = formatMillis(b.LastActivity)
	}

	if len(values) == 0 {
		return nil
	}
	return s.backend.Set(ctx, values)
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, Keys)
}

// TouchActivity records now as the last interaction.
func (s *Store) TouchActivity(ctx context.Context, now time.Time) error {
	return s.backend.Set(ctx, map[string]string{KeyLastActivity: formatMillis(now)})
}

// OnCredentialChange registers fn for changes made by other instances.
func (s *Store) OnCredentialChange(fn func(key string)) (cancel func(), err error) {
	return s.backend.Subscribe(fn)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
