// Package session owns the panel's login session: when it is valid, when the
// access token gets refreshed, when it expires, and how other instances
// sharing the credential store are kept in step.
package session

import (
	"errors"
	"time"
)

const (
	DefaultInactivityTimeout    = 30 * time.Minute
	DefaultRefreshThreshold     = 5 * time.Minute
	DefaultExpiredRedirectDelay = 2 * time.Second
	DefaultMinCheckInterval     = time.Second
	DefaultRecheckInterval      = time.Minute
)

var (
	ErrNoSession     = errors.New("session: no session")
	ErrRefreshFailed = errors.New("session: refresh failed")
	ErrSessionEnded  = errors.New("session: ended during refresh")
)

// State is where the manager sits in the session lifecycle.
type State int

const (
	NoSession State = iota
	Valid
	Refreshing
	Expired
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case Valid:
		return "valid"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Notifier presents session problems to the user.
type Notifier interface {
	SessionExpired()
	NetworkError(err error)
}

// Navigator moves the user to the login view.
type Navigator interface {
	// RequiresSession reports whether the current view is access controlled.
	RequiresSession() bool
	ToLogin()
}

type nopNotifier struct{}

func (nopNotifier) SessionExpired()    {}
func (nopNotifier) NetworkError(error) {}

type nopNavigator struct{}

func (nopNavigator) RequiresSession() bool { return false }
func (nopNavigator) ToLogin()              {}

// Config tunes the manager. Zero values take the defaults above.
type Config struct {
	InactivityTimeout    time.Duration // idle time before the session expires (default: 30m)
	RefreshThreshold     time.Duration // refresh this long before exp (default: 5m)
	ExpiredRedirectDelay time.Duration // banner time before navigating to login (default: 2s)
	MinCheckInterval     time.Duration // floor for the scheduled check (default: 1s)
	RecheckInterval      time.Duration // check delay when exp cannot be read (default: 1m)

	Notifier  Notifier
	Navigator Navigator

	// Now is the wall clock (default: time.Now).
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.ExpiredRedirectDelay <= 0 {
		c.ExpiredRedirectDelay = DefaultExpiredRedirectDelay
	}
	if c.MinCheckInterval <= 0 {
		c.MinCheckInterval = DefaultMinCheckInterval
	}
	if c.RecheckInterval <= 0 {
		c.RecheckInterval = DefaultRecheckInterval
	}
	if c.Notifier == nil {
		c.Notifier = nopNotifier{}
	}
	if c.Navigator == nil {
		c.Navigator = nopNavigator{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
