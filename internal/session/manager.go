package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/jwtx"
)

// Manager is the session state machine. It is safe for concurrent use.
// Network and store calls never run while mu is held.
type Manager struct {
	auth      *authsdk.SDKClient
	validator *authsdk.SDKClient
	store     *credstore.Store
	logger    *slog.Logger
	cfg       Config

	flight singleflight.Group
	sched  *Scheduler

	mu       sync.Mutex
	state    State
	bundle   credstore.Bundle
	gen      uint64 // bumped whenever the session is torn down
	redirect *time.Timer
	events   listeners
	unwatch  func()
	closed   bool
}

// NewManager wires a manager to the auth backend and credential store. Call
// Start to restore a persisted session and begin background checks.
func NewManager(auth *authsdk.SDKClient, store *credstore.Store, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		auth:   auth,
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
	m.sched = NewScheduler(func() { m.CheckSession(context.Background()) })

	// Validation goes through the authenticating transport so a stale
	// access token gets one refresh before the session is judged invalid.
	hc := &http.Client{}
	if auth.HTTPClient != nil {
		hc.Timeout = auth.HTTPClient.Timeout
		hc.Transport = auth.HTTPClient.Transport
	}
	hc.Transport = &Transport{Base: hc.Transport, Auth: m}
	m.validator = auth.WithHTTPClient(hc)

	return m
}

// Start subscribes to changes from other instances and runs the startup
// check. Background failures are reported through the Notifier, not here.
func (m *Manager) Start(ctx context.Context) error {
	unwatch, err := m.store.OnCredentialChange(m.onCredentialChange)
	if err != nil {
		return fmt.Errorf("session: watch credentials: %w", err)
	}

	m.mu.Lock()
	m.unwatch = unwatch
	m.mu.Unlock()

	m.CheckInitialSession(ctx)
	return nil
}

// Close stops background work. The store is left open.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	unwatch := m.unwatch
	m.unwatch = nil
	if m.redirect != nil {
		m.redirect.Stop()
		m.redirect = nil
	}
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	m.sched.Stop()
}

// ============================================================================
// Login / Logout
// ============================================================================

// Login authenticates against the backend and persists the new session.
// Errors carry the backend's message when it sent one.
func (m *Manager) Login(ctx context.Context, username, password string) (*authsdk.Profile, error) {
	resp, err := m.auth.Login(ctx, username, password)
	if err != nil {
		if authsdk.IsNetworkError(err) {
			m.cfg.Notifier.NetworkError(err)
		}
		m.logger.Warn("login failed", "username", username, "error", err)
		return nil, err
	}

	b := credstore.Bundle{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
		LastActivity: m.cfg.Now(),
	}
	if err := m.store.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("session: persist credentials: %w", err)
	}

	m.mu.Lock()
	m.stopRedirectLocked()
	m.bundle = b
	m.state = Valid
	m.mu.Unlock()

	m.logger.Info("user logged in", "username", resp.User.Username, "role", resp.User.Role)

	m.reschedule()
	m.emitLoggedIn(*resp.User)

	p := *resp.User
	return &p, nil
}

// Logout tells the backend (best effort) and clears the local session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.bundle.AccessToken
	m.mu.Unlock()

	if token != "" {
		if err := m.auth.Logout(ctx, token); err != nil {
			m.logger.Warn("logout endpoint failed, clearing local session anyway", "error", err)
		}
	}

	m.mu.Lock()
	m.stopRedirectLocked()
	m.bundle = credstore.Bundle{}
	m.state = NoSession
	m.gen++
	m.mu.Unlock()

	m.sched.Cancel()
	err := m.store.Clear(ctx)

	m.logger.Info("user logged out")
	m.emitLoggedOut()

	if err != nil {
		return fmt.Errorf("session: clear credentials: %w", err)
	}
	return nil
}

// ============================================================================
// Refresh
// ============================================================================

// Refresh mints a new access token with the stored refresh token. Concurrent
// callers share one request; a caller whose ctx ends stops waiting but does
// not cancel the shared refresh. On failure the session is expired and the
// error wraps ErrRefreshFailed.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refresh(ctx, true)
}

// refresh stamps activity on success when stamp is set. The scheduled check
// refreshes without stamping so an idle session still times out.
func (m *Manager) refresh(ctx context.Context, stamp bool) error {
	ch := m.flight.DoChan("refresh", func() (any, error) {
		return nil, m.doRefresh(context.WithoutCancel(ctx), stamp)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, stamp bool) error {
	stored, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("failed to load credentials for refresh", "error", err)
		m.handleExpired(ctx, "credential store unavailable")
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if stored.RefreshToken == "" {
		m.handleExpired(ctx, "no refresh token")
		return fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	m.mu.Lock()
	gen := m.gen
	if m.state == Valid {
		m.state = Refreshing
	}
	m.mu.Unlock()

	resp, err := m.auth.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		if authsdk.IsNetworkError(err) {
			m.cfg.Notifier.NetworkError(err)
		}
		m.logger.Warn("token refresh failed", "error", err)
		m.handleExpired(ctx, "refresh rejected")
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	m.mu.Lock()
	ended := m.gen != gen || m.closed
	m.mu.Unlock()
	if ended {
		return ErrSessionEnded
	}

	now := m.cfg.Now()
	update := credstore.Bundle{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken, // empty keeps the stored one
	}
	if stamp {
		update.LastActivity = now
	}
	if err := m.store.Save(ctx, update); err != nil {
		m.logger.Error("failed to persist refreshed token", "error", err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return ErrSessionEnded
	}
	m.bundle.AccessToken = resp.AccessToken
	m.bundle.RefreshToken = stored.RefreshToken
	if resp.RefreshToken != "" {
		m.bundle.RefreshToken = resp.RefreshToken
	}
	if m.bundle.User == nil {
		m.bundle.User = stored.User
	}
	if stamp {
		m.bundle.LastActivity = now
	} else if m.bundle.LastActivity.IsZero() {
		m.bundle.LastActivity = stored.LastActivity
	}
	m.stopRedirectLocked()
	m.state = Valid
	m.mu.Unlock()

	m.logger.Debug("access token refreshed", "rotated", resp.RefreshToken != "")
	m.reschedule()
	return nil
}

// ============================================================================
// Checks
// ============================================================================

// CheckInitialSession restores a persisted session: refresh once if the
// access token has expired, then validate with the backend. Any failure
// expires the session.
func (m *Manager) CheckInitialSession(ctx context.Context) {
	b, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("failed to load credentials", "error", err)
	}

	if !b.Usable() {
		m.mu.Lock()
		m.bundle = credstore.Bundle{}
		m.state = NoSession
		m.mu.Unlock()

		m.logger.Debug("no stored session")
		if m.cfg.Navigator.RequiresSession() {
			m.cfg.Navigator.ToLogin()
		}
		return
	}

	m.mu.Lock()
	m.stopRedirectLocked()
	m.bundle = b
	m.state = Valid
	m.mu.Unlock()

	if jwtx.IsExpired(b.AccessToken, m.cfg.Now()) {
		m.logger.Debug("stored access token expired, refreshing")
		if err := m.Refresh(ctx); err != nil {
			return
		}
	}

	if !m.ValidateWithServer(ctx) {
		m.handleExpired(ctx, "validation failed")
		return
	}

	m.mu.Lock()
	stampMissing := m.bundle.LastActivity.IsZero()
	m.mu.Unlock()
	if stampMissing {
		if err := m.RecordActivity(ctx); err != nil {
			m.logger.Warn("failed to record activity", "error", err)
		}
	}

	m.logger.Info("session restored", "username", m.User().Username)
	m.reschedule()
}

// CheckSession is the scheduled check: expire an idle session, refresh an
// access token close to expiry. It does nothing without a valid session.
func (m *Manager) CheckSession(ctx context.Context) {
	m.mu.Lock()
	state, token := m.state, m.bundle.AccessToken
	m.mu.Unlock()

	if state != Valid || token == "" {
		return
	}

	if m.IsSessionTimedOut(ctx) {
		m.handleExpired(ctx, "inactivity")
		return
	}

	if m.needsRefresh(token) {
		// Failure has already expired the session.
		_ = m.refresh(ctx, false)
		return
	}

	m.reschedule()
}

// ValidateWithServer asks the backend whether the session is still good and
// adopts the profile it returns. Only a 200 counts as valid.
func (m *Manager) ValidateWithServer(ctx context.Context) bool {
	if m.AccessToken() == "" {
		return false
	}

	// The transport supplies the bearer token.
	resp, err := m.validator.Validate(ctx, "")
	if err != nil {
		if authsdk.IsNetworkError(err) {
			m.cfg.Notifier.NetworkError(err)
		}
		m.logger.Debug("session validation failed", "error", err)
		return false
	}

	if resp.User != nil {
		m.mu.Lock()
		m.bundle.User = resp.User
		m.mu.Unlock()

		if err := m.store.Save(ctx, credstore.Bundle{User: resp.User}); err != nil {
			m.logger.Warn("failed to persist validated profile", "error", err)
		}
	}
	return true
}

// IsSessionTimedOut reports whether the last recorded activity, from any
// instance, is older than the inactivity timeout. No stamp means not timed
// out.
func (m *Manager) IsSessionTimedOut(ctx context.Context) bool {
	var last time.Time

	b, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to read activity stamp", "error", err)
		m.mu.Lock()
		last = m.bundle.LastActivity
		m.mu.Unlock()
	} else {
		last = b.LastActivity
	}

	if last.IsZero() {
		return false
	}
	return m.cfg.Now().Sub(last) > m.cfg.InactivityTimeout
}

// RecordActivity stamps a user interaction. It is a no-op without a session.
func (m *Manager) RecordActivity(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Valid && m.state != Refreshing {
		m.mu.Unlock()
		return nil
	}
	now := m.cfg.Now()
	m.bundle.LastActivity = now
	m.mu.Unlock()

	return m.store.TouchActivity(ctx, now)
}

func (m *Manager) needsRefresh(token string) bool {
	exp, ok := jwtx.ExpiresAt(token)
	if !ok {
		return true
	}
	remaining := time.Duration(exp.Unix()-m.cfg.Now().Unix()) * time.Second
	return remaining < m.cfg.RefreshThreshold
}

// ============================================================================
// Expiry
// ============================================================================

// handleExpired tears the session down once per episode: clear the store,
// show the banner, and navigate to login after ExpiredRedirectDelay.
func (m *Manager) handleExpired(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.state == NoSession || m.state == Expired || m.closed {
		m.mu.Unlock()
		return
	}
	m.state = Expired
	m.bundle = credstore.Bundle{}
	m.gen++
	m.stopRedirectLocked()
	m.redirect = time.AfterFunc(m.cfg.ExpiredRedirectDelay, m.finishExpiry)
	m.mu.Unlock()

	m.sched.Cancel()
	m.logger.Info("session expired", "reason", reason)

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("failed to clear credentials", "error", err)
	}
	m.cfg.Notifier.SessionExpired()
}

func (m *Manager) finishExpiry() {
	m.mu.Lock()
	if m.state != Expired {
		m.mu.Unlock()
		return
	}
	m.state = NoSession
	m.redirect = nil
	m.mu.Unlock()

	m.cfg.Navigator.ToLogin()
}

func (m *Manager) stopRedirectLocked() {
	if m.redirect != nil {
		m.redirect.Stop()
		m.redirect = nil
	}
}

// reschedule arms the next check for a valid session and cancels it
// otherwise.
func (m *Manager) reschedule() {
	m.mu.Lock()
	state, token, closed := m.state, m.bundle.AccessToken, m.closed
	m.mu.Unlock()

	if closed || state != Valid || token == "" {
		m.sched.Cancel()
		return
	}
	m.sched.Schedule(NextCheckDelay(token, m.cfg.Now(), m.cfg))
}

// ============================================================================
// Accessors
// ============================================================================

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether there is a profile and an unexpired
// access token.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	b := m.bundle
	m.mu.Unlock()

	return b.Usable() && !jwtx.IsExpired(b.AccessToken, m.cfg.Now())
}

// User returns a copy of the cached profile, or nil.
func (m *Manager) User() *authsdk.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bundle.User == nil {
		return nil
	}
	p := *m.bundle.User
	return &p
}

func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundle.AccessToken
}

// AuthHeaders returns the Authorization header for the current token, or an
// empty map without one.
func (m *Manager) AuthHeaders() map[string]string {
	token := m.AccessToken()
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
