package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/app"
	"github.com/medcabinet/medcabinet/internal/client/credentials"
	"github.com/medcabinet/medcabinet/internal/client/gate"
	"github.com/medcabinet/medcabinet/internal/client/issuance"
	"github.com/medcabinet/medcabinet/internal/client/session"
	"github.com/medcabinet/medcabinet/internal/config"
	"github.com/medcabinet/medcabinet/internal/domain/account"
	"github.com/medcabinet/medcabinet/internal/platform/auth"
)

// memRepo is an in-memory account.Repository.
type memRepo struct {
	mu     sync.Mutex
	byID   map[int]*account.Account
	nextID int
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[int]*account.Account{}, nextID: 1}
}

func (m *memRepo) Create(_ context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Username, a.Username) {
			return account.ErrUsernameTaken
		}
	}
	a.ID = m.nextID
	m.nextID++
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id int) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if strings.EqualFold(a.Username, username) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *memRepo) TouchLogin(_ context.Context, id int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		a.LastLoginAt = &at
	}
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	revs := auth.NewTokenRevocationStore()
	t.Cleanup(revs.Close)

	cfg := &config.Config{Env: "test", CORSOrigins: []string{"http://localhost:5173"}, RateLimitRPS: 1000, RateLimitBurst: 1000}
	e := newServer(cfg, zerolog.Nop(), serverDeps{
		repo:        newMemRepo(),
		tokens:      auth.NewTokenIssuer([]byte("test-secret-key-for-unit-tests-only"), "medcabinet-test", time.Hour),
		revocations: revs,
		serviceOpts: []account.ServiceOption{account.WithHashCost(bcrypt.MinCost)},
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_MeWithoutTokenIs401WithMessage(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/auth/me")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body struct{ Message string }
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		t.Errorf("expected message body, got %v / %q", err, body.Message)
	}
}

func TestClientAgainstServer_SignupLoginLogout(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	store := credentials.NewMemoryStore("")
	out := &bytes.Buffer{}
	a := app.New(&config.ClientConfig{ServerURL: srv.URL}, out, zerolog.Nop(), app.WithStore(store))
	defer a.Close()

	a.Start(ctx, gate.PathDashboard)
	if cur, _, _ := a.Router.Current(); cur != gate.PathLogin {
		t.Fatalf("expected /login first, got %s", cur)
	}

	res := a.Flows.Signup(ctx, issuance.SignupForm{Username: "drsmith", Password: "correct horse", Name: "Dr Smith"})
	if !res.Success {
		t.Fatalf("signup failed: %s", res.Error)
	}
	if cur, _, _ := a.Router.Current(); cur != gate.PathDashboard {
		t.Errorf("expected dashboard after signup, got %s", cur)
	}

	again := a.Flows.Signup(ctx, issuance.SignupForm{Username: "DrSmith", Password: "x", Name: "Dup"})
	if again.Success || again.Error != issuance.SignupFailed {
		t.Errorf("expected generic signup failure, got %+v", again)
	}
	if !a.Machine.Snapshot().IsAuthenticated() {
		t.Error("failed signup dropped the session")
	}

	token, _ := store.Get()
	a.Logout()
	a.Close()

	if _, ok := store.Get(); ok {
		t.Error("expected empty store after logout")
	}
	_, err := apiclient.New(srv.URL, 0).Me(ctx, token)
	if !apiclient.IsUnauthorized(err) {
		t.Errorf("expected revoked token to be rejected, got %v", err)
	}

	login := a.Flows.Login(ctx, issuance.LoginForm{Username: "drsmith", Password: "wrong"})
	if login.Error != "Invalid credentials" {
		t.Errorf("expected server message, got %q", login.Error)
	}
	login = a.Flows.Login(ctx, issuance.LoginForm{Username: "drsmith", Password: "correct horse"})
	if !login.Success {
		t.Fatalf("login failed: %s", login.Error)
	}
	if out := a.Machine.Refresh(ctx, session.TriggerFocus); out.Kind != session.OK {
		t.Errorf("expected fresh token to resolve, got %s", out.Kind)
	}
}

func TestMigrationsFS_FallsBackToEmbedded(t *testing.T) {
	fsys := migrationsFS("/does/not/exist")
	if _, err := fsys.Open("001_users.sql"); err != nil {
		t.Errorf("expected embedded migrations, got %v", err)
	}
}
