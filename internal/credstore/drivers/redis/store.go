// Package redis is a credstore.Backend on a Redis server, for panels that
// share a session across machines.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/pkg/idx"
)

// DefaultPrefix namespaces the credential keys.
const DefaultPrefix = "stockpanel:"

// changeMessage is published on the change channel after every write.
type changeMessage struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// Store keeps each credential under prefix+key. Writes run in MULTI/EXEC
// together with a PUBLISH on prefix+"changes", tagged with this instance's
// origin ID so the instance can skip its own messages.
type Store struct {
	client *redis.Client
	prefix string
	origin idx.ID
	logger *slog.Logger

	hub    credstore.Hub
	mu     sync.Mutex
	pubsub *redis.PubSub
	doneCh chan struct{}
}

var _ credstore.Backend = (*Store)(nil)

// NewStore takes ownership of client; Close closes it.
func NewStore(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client: client,
		prefix: prefix,
		origin: idx.New(),
		logger: logger,
	}
}

func (s *Store) channel() string { return s.prefix + "changes" }

func (s *Store) key(k string) string { return s.prefix + k }

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get credentials: %w", err)
	}

	for i, v := range values {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	msg, err := s.message(keys)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		pipe.Publish(ctx, s.channel(), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set credentials: %w", err)
	}
	return nil
}

// Delete removes keys. Every requested key is reported to other instances,
// present or not.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	msg, err := s.message(keys)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full...)
		pipe.Publish(ctx, s.channel(), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete credentials: %w", err)
	}
	return nil
}

func (s *Store) message(keys []string) (string, error) {
	raw, err := json.Marshal(changeMessage{Origin: s.origin.String(), Keys: keys})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Subscribe joins the change channel on first use.
func (s *Store) Subscribe(fn func(key string)) (func(), error) {
	if err := s.listen(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(fn)
}

func (s *Store) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub != nil {
		return nil
	}

	ctx := context.Background()
	ps := s.client.Subscribe(ctx, s.channel())

	// Wait for the subscription to be confirmed so that writes made right
	// after Subscribe returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis: subscribe: %w", err)
	}

	s.pubsub = ps
	s.doneCh = make(chan struct{})
	go s.run(ps.Channel(), s.doneCh)

	return nil
}

func (s *Store) run(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)

	for m := range messages {
		var change changeMessage
		if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
			s.logger.Warn("ignoring malformed change message", "error", err)
			continue
		}
		if change.Origin == s.origin.String() {
			continue
		}
		for _, k := range change.Keys {
			s.hub.Publish(k)
		}
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	ps, done := s.pubsub, s.doneCh
	s.pubsub = nil
	s.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
		<-done
	}
	s.hub.Close()

	return s.client.Close()
}
