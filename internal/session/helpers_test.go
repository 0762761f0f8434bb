package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/pkg/authsdk"
	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
)

/*
 * A fake panel backend and helpers shared by the session tests.
 */

const (
	adminUsername = "admin"
	adminPassword = "secret"
)

var tokenSerial atomic.Int64

// mintToken returns a signed access token expiring at exp. Every call yields
// a distinct token.
func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 1,
		"exp": exp.Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
		"jti": tokenSerial.Add(1),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu             sync.Mutex
	calls          []string
	current        string // the access token the backend accepts
	accessTTL      time.Duration
	refreshStatus  int
	refreshDelay   time.Duration
	rotate         bool
	validateStatus int
	rejectAPI      bool
	lastBody       []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{t: t, accessTTL: time.Hour}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", fb.login)
	mux.HandleFunc("POST /api/auth/refresh", fb.refresh)
	mux.HandleFunc("GET /api/auth/validate", fb.validate)
	mux.HandleFunc("POST /api/auth/logout", fb.logout)
	mux.HandleFunc("/api/items", fb.items)

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) record(call string) {
	fb.mu.Lock()
	fb.calls = append(fb.calls, call)
	fb.mu.Unlock()
}

func (fb *fakeBackend) Calls() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.calls...)
}

func (fb *fakeBackend) Count(call string) int {
	n := 0
	for _, c := range fb.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBackend) issue() string {
	fb.mu.Lock()
	ttl := fb.accessTTL
	fb.mu.Unlock()

	tok := mintToken(fb.t, time.Now().Add(ttl))
	fb.set(func(fb *fakeBackend) { fb.current = tok })
	return tok
}

func (fb *fakeBackend) authorized(r *http.Request) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.current != "" && r.Header.Get("Authorization") == "Bearer "+fb.current
}

func adminProfile() map[string]any {
	return map[string]any{"id": 1, "username": adminUsername, "role": "admin", "permissions": []string{"stock:write"}}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	fb.record("login")

	var req authsdk.LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username != adminUsername || req.Password != adminPassword {
		respond(w, http.StatusUnauthorized, map[string]any{"code": 401, "status": "Unauthorized", "message": "Invalid credentials"})
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"message":       "Login successful",
		"access_token":  fb.issue(),
		"refresh_token": "R1",
		"user":          adminProfile(),
	})
}

func (fb *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	fb.record("refresh")

	fb.mu.Lock()
	status, delay, rotate := fb.refreshStatus, fb.refreshDelay, fb.rotate
	fb.mu.Unlock()

	time.Sleep(delay)

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer R") {
		respond(w, http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
		return
	}
	if status != 0 && status != http.StatusOK {
		respond(w, status, map[string]any{"message": "refresh exploded"})
		return
	}

	out := map[string]any{"access_token": fb.issue()}
	if rotate {
		out["refresh_token"] = "R2"
	}
	respond(w, http.StatusOK, out)
}

func (fb *fakeBackend) validate(w http.ResponseWriter, r *http.Request) {
	fb.record("validate")

	fb.mu.Lock()
	status := fb.validateStatus
	fb.mu.Unlock()

	if status != 0 {
		respond(w, status, map[string]any{"message": "nope"})
		return
	}
	if !fb.authorized(r) {
		respond(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
		return
	}

	user := adminProfile()
	user["email"] = "admin@example.com"
	respond(w, http.StatusOK, map[string]any{"valid": true, "user": user})
}

func (fb *fakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	fb.record("logout")
	respond(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (fb *fakeBackend) items(w http.ResponseWriter, r *http.Request) {
	fb.record("items")

	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		fb.set(func(fb *fakeBackend) { fb.lastBody = append(fb.lastBody, string(data)) })
	}

	fb.mu.Lock()
	reject := fb.rejectAPI
	fb.mu.Unlock()

	if reject || !fb.authorized(r) {
		respond(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
		return
	}
	respond(w, http.StatusOK, []map[string]any{{"sku": "A-1", "qty": 3}})
}

// recorder is a Notifier and Navigator that counts calls.
type recorder struct {
	expired   atomic.Int32
	network   atomic.Int32
	toLogin   atomic.Int32
	protected bool
}

func (r *recorder) SessionExpired()       { r.expired.Add(1) }
func (r *recorder) NetworkError(error)    { r.network.Add(1) }
func (r *recorder) RequiresSession() bool { return r.protected }
func (r *recorder) ToLogin()              { r.toLogin.Add(1) }

type harness struct {
	backend *fakeBackend
	mem     *credstore.Memory
	store   *credstore.Store
	rec     *recorder
	m       *Manager
}

// newHarness builds a manager against a fake backend. The scheduled check
// is pushed out to the inactivity cap so it stays quiet during a test.
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	fb := newFakeBackend(t)
	mem := credstore.NewMemory()
	return newHarnessOn(t, fb, mem, cfg)
}

func newHarnessOn(t *testing.T, fb *fakeBackend, mem *credstore.Memory, cfg Config) *harness {
	t.Helper()

	rec := &recorder{}
	if cfg.MinCheckInterval == 0 {
		cfg.MinCheckInterval = time.Hour
	}
	if cfg.ExpiredRedirectDelay == 0 {
		cfg.ExpiredRedirectDelay = 50 * time.Millisecond
	}
	cfg.Notifier = rec
	cfg.Navigator = rec

	store := credstore.New(mem, slogx.Discard())
	m := NewManager(authsdk.NewSDKClient(fb.srv.URL), store, slogx.Discard(), cfg)
	t.Cleanup(m.Close)

	return &harness{backend: fb, mem: mem, store: store, rec: rec, m: m}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.m.Login(context.Background(), adminUsername, adminPassword)
	require.NoError(t, err)
}

func (h *harness) stored(t *testing.T) credstore.Bundle {
	t.Helper()
	b, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return b
}
