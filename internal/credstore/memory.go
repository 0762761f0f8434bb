package credstore

import (
	"context"
	"sync"
)

// memoryShared is the storage every Memory peer reads and writes.
type memoryShared struct {
	mu    sync.RWMutex
	data  map[string]string
	peers map[*Memory]struct{}
}

// Memory is an in-process Backend. Peers created with Peer share the same
// data but notify each other the way separate browser tabs would.
type Memory struct {
	shared *memoryShared
	hub    Hub
}

func NewMemory() *Memory {
	shared := &memoryShared{
		data:  make(map[string]string),
		peers: make(map[*Memory]struct{}),
	}
	return shared.join()
}

// Peer returns another instance over the same data.
func (m *Memory) Peer() *Memory {
	return m.shared.join()
}

func (s *memoryShared) join() *Memory {
	m := &Memory{shared: s}
	s.mu.Lock()
	s.peers[m] = struct{}{}
	s.mu.Unlock()
	return m
}

func (m *Memory) Get(_ context.Context, keys []string) (map[string]string, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.shared.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, values map[string]string) error {
	m.shared.mu.Lock()
	var changed []string
	for k, v := range values {
		if old, ok := m.shared.data[k]; ok && old == v {
			continue
		}
		m.shared.data[k] = v
		changed = append(changed, k)
	}
	peers := m.otherPeersLocked()
	m.shared.mu.Unlock()

	notify(peers, changed)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys []string) error {
	m.shared.mu.Lock()
	var changed []string
	for _, k := range keys {
		if _, ok := m.shared.data[k]; !ok {
			continue
		}
		delete(m.shared.data, k)
		changed = append(changed, k)
	}
	peers := m.otherPeersLocked()
	m.shared.mu.Unlock()

	notify(peers, changed)
	return nil
}

func (m *Memory) Subscribe(fn func(key string)) (func(), error) {
	return m.hub.Subscribe(fn)
}

// Close detaches the instance from its peers. The shared data stays.
func (m *Memory) Close() error {
	m.shared.mu.Lock()
	delete(m.shared.peers, m)
	m.shared.mu.Unlock()

	m.hub.Close()
	return nil
}

func (m *Memory) otherPeersLocked() []*Memory {
	peers := make([]*Memory, 0, len(m.shared.peers))
	for p := range m.shared.peers {
		if p != m {
			peers = append(peers, p)
		}
	}
	return peers
}

func notify(peers []*Memory, keys []string) {
	for _, p := range peers {
		for _, k := range keys {
			p.hub.Publish(k)
		}
	}
}
