// Package notify shows session problems to the person at the terminal and,
// when configured, reports them to Sentry.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultBannerTTL is how long a banner counts as showing.
const DefaultBannerTTL = 5 * time.Second

// Notifier is what the session manager reports to.
type Notifier interface {
	SessionExpired()
	NetworkError(err error)
}

// Kind identifies a banner.
type Kind string

const (
	KindSessionExpired Kind = "session_expired"
	KindNetworkError   Kind = "network_error"
)

// Terminal writes banners to w. While a banner of some kind is showing,
// further banners of that kind are dropped.
type Terminal struct {
	w   io.Writer
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	showing map[Kind]time.Time
}

func NewTerminal(w io.Writer, ttl time.Duration) *Terminal {
	if ttl <= 0 {
		ttl = DefaultBannerTTL
	}
	return &Terminal{
		w:       w,
		ttl:     ttl,
		now:     time.Now,
		showing: make(map[Kind]time.Time),
	}
}

func (t *Terminal) SessionExpired() {
	t.show(KindSessionExpired, "Session expired",
		"Your session expired for security reasons. You will be taken to the login.")
}

func (t *Terminal) NetworkError(err error) {
	t.show(KindNetworkError, "Connection problem",
		fmt.Sprintf("Could not reach the server: %v", err))
}

// Showing reports whether a banner of kind is still on screen.
func (t *Terminal) Showing(kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.showingLocked(kind)
}

func (t *Terminal) showingLocked(kind Kind) bool {
	shown, ok := t.showing[kind]
	if !ok {
		return false
	}
	if t.now().Sub(shown) >= t.ttl {
		delete(t.showing, kind)
		return false
	}
	return true
}

func (t *Terminal) show(kind Kind, title, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.showingLocked(kind) {
		return
	}
	t.showing[kind] = t.now()

	_, _ = fmt.Fprintf(t.w, "\n!! %s\n   %s\n\n", title, text)
}
