package session

import (
	"context"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
)

// onCredentialChange follows logins, logouts and refreshes made by other
// instances. Activity stamps are read on demand and ignored here.
func (m *Manager) onCredentialChange(key string) {
	switch key {
	case credstore.KeyAccessToken, credstore.KeyRefreshToken, credstore.KeyUser:
	default:
		return
	}

	ctx := context.Background()
	b, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to reload credentials after external change", "error", err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	before := m.state
	switch {
	case b.Usable():
		m.stopRedirectLocked()
		m.bundle = b
		if m.state != Refreshing {
			m.state = Valid
		}
	case m.state == Valid || m.state == Refreshing:
		m.bundle = credstore.Bundle{}
		m.state = NoSession
		m.gen++
	}
	after := m.state
	m.mu.Unlock()

	m.logger.Debug("credentials changed by another instance", "key", key, "state", after.String())

	switch {
	case before != Valid && before != Refreshing && after == Valid:
		if p := m.User(); p != nil {
			m.emitLoggedIn(*p)
		}
	case (before == Valid || before == Refreshing) && after == NoSession:
		m.emitLoggedOut()
	}

	m.reschedule()
}
