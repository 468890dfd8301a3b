package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/credentials"
)

var drSmith = apiclient.User{ID: 1, Username: "drsmith", Name: "Dr Smith", Role: "doctor"}

// fakeBackend serves the auth endpoints. /me answers 200 for validTokens,
// 401 otherwise, and can be held open with block.
type fakeBackend struct {
	*httptest.Server

	meCalls    atomic.Int32
	mu         sync.Mutex
	valid      map[string]bool
	meStatus   int
	gate       chan struct{}
	entered    chan struct{}
	loginToken string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{valid: map[string]bool{}, loginToken: "issued-token"}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/auth/me":
		b.meCalls.Add(1)
		b.mu.Lock()
		gate, entered, status := b.gate, b.entered, b.meStatus
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ok := b.valid[tok]
		b.mu.Unlock()
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		if gate != nil {
			<-gate
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid token"}`))
			return
		}
		json.NewEncoder(w).Encode(drSmith)
	case "/api/auth/login":
		var req struct{ Username, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "drsmith" || req.Password != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		b.mu.Lock()
		tok := b.loginToken
		b.valid[tok] = true
		b.mu.Unlock()
		json.NewEncoder(w).Encode(apiclient.AuthResponse{Token: tok, User: drSmith})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBackend) accept(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid[token] = true
}

func (b *fakeBackend) revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.valid, token)
}

func (b *fakeBackend) setMeStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meStatus = code
}

// block makes the next /me requests wait until the returned release is
// called. entered receives once per request that reached the handler.
func (b *fakeBackend) block() (entered <-chan struct{}, release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	b.entered = make(chan struct{}, 8)
	gate := b.gate
	var once sync.Once
	return b.entered, func() { once.Do(func() { close(gate) }) }
}

func newTestMachine(t *testing.T, b *fakeBackend, token string) (*Machine, *credentials.MemoryStore) {
	t.Helper()
	store := credentials.NewMemoryStore(token)
	api := apiclient.New(b.URL, 0)
	r := NewResolver(store, api, zerolog.Nop())
	return NewMachine(r, store, api, zerolog.Nop()), store
}
