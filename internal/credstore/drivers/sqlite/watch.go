package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// watcher polls PRAGMA data_version on a dedicated connection. The value
// only moves when some other connection commits, at which point the table
// is diffed against the last snapshot to find the keys that changed.
type watcher struct {
	conn    *sql.Conn
	q       *queries
	version int64

	stopCh chan struct{}
	doneCh chan struct{}
}

func (s *Store) startWatch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watch != nil {
		return nil
	}

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: pin watch connection: %w", err)
	}

	w := &watcher{
		conn:   conn,
		q:      newQueries(conn),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	s.mu.Lock()
	w.version, err = w.q.DataVersion(ctx)
	if err == nil {
		s.snapshot, err = w.q.ListCredentials(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("sqlite: start watch: %w", err)
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s.watch = w
	go s.runWatch(w, interval)

	s.logger.Debug("credential watcher started", "interval", interval)
	return nil
}

func (s *Store) runWatch(w *watcher, interval time.Duration) {
	defer close(w.doneCh)
	defer w.conn.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, key := range s.poll(w) {
				s.hub.Publish(key)
			}
		case <-w.stopCh:
			return
		}
	}
}

// poll returns the keys changed by other connections since the last call.
func (s *Store) poll(w *watcher) []string {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := w.q.DataVersion(ctx)
	if err != nil {
		s.logger.Warn("credential watcher poll failed", "error", err)
		return nil
	}
	if version == w.version {
		return nil
	}
	w.version = version

	current, err := w.q.ListCredentials(ctx)
	if err != nil {
		s.logger.Warn("credential watcher read failed", "error", err)
		return nil
	}

	changed := diff(s.snapshot, current)
	s.snapshot = current
	return changed
}

func (w *watcher) stop() {
	close(w.stopCh)
	<-w.doneCh
}

func diff(before, after map[string]string) []string {
	var changed []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}
