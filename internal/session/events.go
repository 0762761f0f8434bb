package session

import "github.com/aussiebroadwan/stockpanel/pkg/authsdk"

type listeners struct {
	next      int
	loggedIn  map[int]func(authsdk.Profile)
	loggedOut map[int]func()
}

// OnLoggedIn registers fn to run after a login, with the new profile.
func (m *Manager) OnLoggedIn(fn func(authsdk.Profile)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.events.loggedIn == nil {
		m.events.loggedIn = make(map[int]func(authsdk.Profile))
	}
	id := m.events.next
	m.events.next++
	m.events.loggedIn[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.events.loggedIn, id)
		m.mu.Unlock()
	}
}

// OnLoggedOut registers fn to run after a logout.
func (m *Manager) OnLoggedOut(fn func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.events.loggedOut == nil {
		m.events.loggedOut = make(map[int]func())
	}
	id := m.events.next
	m.events.next++
	m.events.loggedOut[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.events.loggedOut, id)
		m.mu.Unlock()
	}
}

func (m *Manager) emitLoggedIn(p authsdk.Profile) {
	m.mu.Lock()
	fns := make([]func(authsdk.Profile), 0, len(m.events.loggedIn))
	for _, fn := range m.events.loggedIn {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (m *Manager) emitLoggedOut() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.events.loggedOut))
	for _, fn := range m.events.loggedOut {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
