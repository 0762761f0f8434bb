// Package sqlite is a credstore.Backend on a local SQLite file, shared by
// every panel process on the machine.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	_ "modernc.org/sqlite"
)

// DefaultPollInterval is how often the change watcher checks for commits
// made by other processes.
const DefaultPollInterval = 500 * time.Millisecond

// DSN returns the connection string used for a credential database at path.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

type Store struct {
	db     *sql.DB
	q      *queries
	logger *slog.Logger

	PollInterval time.Duration

	// mu serialises our own writes with the watcher's snapshot diff, so a
	// commit made here is never reported back as a foreign change.
	mu       sync.Mutex
	snapshot map[string]string

	hub     credstore.Hub
	watchMu sync.Mutex
	watch   *watcher
}

var _ credstore.Backend = (*Store)(nil)

func NewStore(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:           db,
		q:            newQueries(db),
		logger:       logger,
		PollInterval: DefaultPollInterval,
	}, nil
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(newQueries(tx)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, keys []string) (map[string]string, error) {
	values, err := s.q.GetCredentials(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get credentials: %w", err)
	}
	return values, nil
}

func (s *Store) Set(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	err := s.withTx(ctx, func(q *queries) error {
		for k, v := range values {
			if err := q.UpsertCredential(ctx, k, v, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: set credentials: %w", err)
	}

	if s.snapshot != nil {
		for k, v := range values {
			s.snapshot[k] = v
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(q *queries) error {
		for _, k := range keys {
			if err := q.DeleteCredential(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: delete credentials: %w", err)
	}

	if s.snapshot != nil {
		for _, k := range keys {
			delete(s.snapshot, k)
		}
	}
	return nil
}

// Subscribe starts the change watcher on first use.
func (s *Store) Subscribe(fn func(key string)) (func(), error) {
	if err := s.startWatch(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(fn)
}

func (s *Store) Close() error {
	s.watchMu.Lock()
	w := s.watch
	s.watch = nil
	s.watchMu.Unlock()

	if w != nil {
		w.stop()
	}
	s.hub.Close()

	return s.db.Close()
}
