package notify

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty DSN leaves it
// disabled.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// Sentry forwards to next and reports network errors as exceptions. Session
// expiry is recorded as a breadcrumb so it shows up alongside later events.
type Sentry struct {
	next Notifier
	hub  *sentry.Hub
}

// NewSentry wraps next. A nil hub uses the current global hub.
func NewSentry(next Notifier, hub *sentry.Hub) *Sentry {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Sentry{next: next, hub: hub}
}

func (s *Sentry) SessionExpired() {
	s.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "session",
		Message:  "session expired",
		Level:    sentry.LevelInfo,
	}, nil)
	s.next.SessionExpired()
}

func (s *Sentry) NetworkError(err error) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "session")
		scope.SetTag("kind", string(KindNetworkError))
		s.hub.CaptureException(err)
	})
	s.next.NetworkError(err)
}
