package credstore

import "sync"

// Hub fans change notifications out to subscribers. Every subscriber gets its
// own queue and goroutine, so Publish never waits on a listener and each
// listener sees keys in publish order. A key published again while still
// queued for a subscriber is delivered once.
type Hub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	mu      sync.Mutex
	pending []string
	queued  map[string]bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *subscriber) push(key string) {
	s.mu.Lock()
	if !s.queued[key] {
		s.queued[key] = true
		s.pending = append(s.pending, key)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.pending
	s.pending = nil
	clear(s.queued)
	return keys
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe registers fn. The returned cancel is idempotent.
func (h *Hub) Subscribe(fn func(key string)) (cancel func(), err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if h.subs == nil {
		h.subs = make(map[int]*subscriber)
	}

	id := h.next
	h.next++

	sub := &subscriber{
		queued: make(map[string]bool),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.subs[id] = sub

	go func() {
		for {
			select {
			case <-sub.wake:
				for _, key := range sub.drain() {
					select {
					case <-sub.done:
						return
					default:
					}
					fn(key)
				}
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}, nil
}

// Publish queues key for every subscriber.
func (h *Hub) Publish(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		sub.push(key)
	}
}

// Close stops all subscribers. Later Subscribe calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		sub.stop()
		delete(h.subs, id)
	}
}
