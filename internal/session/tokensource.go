package session

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/stockpanel/pkg/jwtx"
)

// TokenSource exposes the session as an oauth2.TokenSource, for libraries
// that take one. Tokens close to expiry are refreshed first.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return &tokenSource{m: m}
}

type tokenSource struct {
	m *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	token := ts.m.AccessToken()
	if token == "" {
		return nil, ErrNoSession
	}

	if ts.m.needsRefresh(token) {
		if err := ts.m.Refresh(context.Background()); err != nil {
			return nil, err
		}
		if token = ts.m.AccessToken(); token == "" {
			return nil, ErrNoSession
		}
	}

	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, ok := jwtx.ExpiresAt(token); ok {
		t.Expiry = exp
	}
	return t, nil
}
