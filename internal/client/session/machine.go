package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/credentials"
)

// State is the session phase.
type State int

const (
	Resolving State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Trigger names why a refresh was requested.
type Trigger string

const (
	TriggerMount     Trigger = "mount"
	TriggerFocus     Trigger = "focus"
	TriggerReconnect Trigger = "reconnect"
)

// DefaultLoginError is shown when a failed login carries no server message.
const DefaultLoginError = "Invalid credentials"

// Snapshot is an immutable view of the session. Version increases with every
// published change.
type Snapshot struct {
	State   State
	User    *apiclient.User
	Version uint64
	Epoch   uint64
}

func (s Snapshot) IsAuthenticated() bool { return s.State == Authenticated && s.User != nil }

// Result is what an issuance attempt returns to its form.
type Result struct {
	Success bool
	User    *apiclient.User
	Error   string
}

// LoginAPI issues credentials.
type LoginAPI interface {
	Login(ctx context.Context, username, password string) (*apiclient.AuthResponse, error)
}

// LogoutHook runs after a logout has been applied. token is the credential
// that was discarded, empty if none was stored.
type LogoutHook func(token string)

// Machine is the single authoritative session store. Every reader observes it
// through Snapshot or Subscribe.
type Machine struct {
	resolver *Resolver
	store    credentials.Store
	api      LoginAPI
	logger   zerolog.Logger

	mu          sync.Mutex
	state       State
	user        *apiclient.User
	version     uint64
	epoch       uint64
	subscribers map[int]func(Snapshot)
	nextSub     int
	logoutHooks []LogoutHook
}

func NewMachine(resolver *Resolver, store credentials.Store, api LoginAPI, logger zerolog.Logger) *Machine {
	return &Machine{
		resolver:    resolver,
		store:       store,
		api:         api,
		logger:      logger,
		state:       Resolving,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// OnLogout registers a hook run after every logout, in registration order.
func (m *Machine) OnLogout(h LogoutHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutHooks = append(m.logoutHooks, h)
}

// Snapshot returns the current session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe calls fn after every change until the returned func is called.
// Calls happen outside the machine's lock and may arrive out of order from
// concurrent transitions; compare Version to drop stale ones.
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}

// Mount starts a fresh session lifetime: it enters Resolving, asks the
// resolver once and settles in Authenticated or Anonymous. A transient
// failure settles in Anonymous but keeps the stored credential so a later
// Refresh can still succeed.
func (m *Machine) Mount(ctx context.Context) Outcome {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.state, m.user = Resolving, nil
	m.unlockAndPublish()

	out := m.resolver.Resolve(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Debug().Str("outcome", out.Kind.String()).Msg("discarding stale mount resolution")
		return out
	}
	switch out.Kind {
	case OK:
		m.state, m.user = Authenticated, out.User
	default:
		m.state, m.user = Anonymous, nil
	}
	m.logger.Debug().Str("outcome", out.Kind.String()).Str("state", m.state.String()).Msg("session mounted")
	m.unlockAndPublish()
	return out
}

// Refresh re-validates the session without passing through Resolving.
// OK replaces the user, a missing or rejected credential signs out, and a
// transient failure changes nothing.
func (m *Machine) Refresh(ctx context.Context, trigger Trigger) Outcome {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	out := m.resolver.Resolve(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Debug().Str("trigger", string(trigger)).Str("outcome", out.Kind.String()).
			Msg("discarding stale refresh")
		return out
	}
	prev := m.state
	switch out.Kind {
	case OK:
		m.state, m.user = Authenticated, out.User
	case NoCredential, InvalidCredential:
		m.state, m.user = Anonymous, nil
	case Transient:
		m.mu.Unlock()
		m.logger.Debug().Str("trigger", string(trigger)).Err(out.Err).Msg("refresh failed, keeping session")
		return out
	}
	if prev != m.state {
		m.logger.Info().Str("trigger", string(trigger)).Str("from", prev.String()).
			Str("to", m.state.String()).Msg("session changed")
	}
	m.unlockAndPublish()
	return out
}

// Login exchanges username and password for a credential. On success the
// session becomes Authenticated from the response payload without another
// identity request. On failure the session and store are left untouched.
func (m *Machine) Login(ctx context.Context, username, password string) Result {
	resp, err := m.api.Login(ctx, username, password)
	if err != nil {
		return Result{Success: false, Error: loginErrorMessage(err)}
	}
	if err := m.Adopt(resp.Token, resp.User); err != nil {
		m.logger.Error().Err(err).Msg("store credential")
		return Result{Success: false, Error: "Could not save credential"}
	}
	u := resp.User
	return Result{Success: true, User: &u}
}

// Adopt installs a credential obtained elsewhere, such as from signup.
func (m *Machine) Adopt(token string, user apiclient.User) error {
	if token == "" {
		return errors.New("session: empty credential")
	}
	if err := m.store.Set(token); err != nil {
		return err
	}

	u := user
	m.mu.Lock()
	m.epoch++
	m.state, m.user = Authenticated, &u
	m.logger.Info().Int("user_id", u.ID).Msg("signed in")
	m.unlockAndPublish()
	return nil
}

// Logout discards the credential and signs out. Resolutions still in flight
// belong to the previous epoch and are ignored when they land.
func (m *Machine) Logout() {
	token, _ := m.store.Get()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("clear credential on logout")
	}

	m.mu.Lock()
	m.epoch++
	m.state, m.user = Anonymous, nil
	hooks := append([]LogoutHook(nil), m.logoutHooks...)
	m.logger.Info().Msg("signed out")
	m.unlockAndPublish()

	for _, h := range hooks {
		h(token)
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	var u *apiclient.User
	if m.user != nil {
		cp := *m.user
		u = &cp
	}
	return Snapshot{State: m.state, User: u, Version: m.version, Epoch: m.epoch}
}

// unlockAndPublish bumps the version, releases m.mu and notifies
// subscribers. Must be called with m.mu held.
func (m *Machine) unlockAndPublish() {
	m.version++
	snap := m.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func loginErrorMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return DefaultLoginError
	}
	return err.Error()
}
