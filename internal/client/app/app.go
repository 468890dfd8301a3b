// Package app wires the terminal client: credential store, API client,
// session machine, identity query, navigator and connectivity watcher.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/credentials"
	"github.com/medcabinet/medcabinet/internal/client/gate"
	"github.com/medcabinet/medcabinet/internal/client/identity"
	"github.com/medcabinet/medcabinet/internal/client/issuance"
	"github.com/medcabinet/medcabinet/internal/client/session"
	"github.com/medcabinet/medcabinet/internal/client/views"
	"github.com/medcabinet/medcabinet/internal/config"
)

// logoutTimeout bounds the best-effort server-side revocation.
const logoutTimeout = 5 * time.Second

type App struct {
	Store    credentials.Store
	API      *apiclient.Client
	Machine  *session.Machine
	Query    *identity.Query
	Router   *gate.Router
	Watcher  *identity.ConnectivityWatcher
	Flows    *issuance.Flows
	Prompter Prompter

	logger zerolog.Logger
	outMu  sync.Mutex
	out    io.Writer

	pending sync.WaitGroup
}

// Option customizes an App.
type Option func(*App)

// WithStore replaces the on-disk credential store.
func WithStore(s credentials.Store) Option {
	return func(a *App) { a.Store = s }
}

func WithPrompter(p Prompter) Option {
	return func(a *App) { a.Prompter = p }
}

// New builds the client for cfg. Views are written to out.
func New(cfg *config.ClientConfig, out io.Writer, logger zerolog.Logger, opts ...Option) *App {
	a := &App{
		API:      apiclient.New(cfg.ServerURL, cfg.RequestTimeout),
		Prompter: PromptUI{},
		logger:   logger,
		out:      out,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Store == nil {
		a.Store = credentials.NewFileStore(cfg.CredentialsDir, cfg.Origin(), logger)
	}

	resolver := session.NewResolver(a.Store, a.API, logger)
	a.Machine = session.NewMachine(resolver, a.Store, a.API, logger)
	a.Query = identity.NewQuery(a.Machine, logger)
	a.Router = gate.NewRouter(a.Machine, views.Registry(), logger)
	a.Flows = issuance.NewFlows(a.Machine, a.API, a.Router, logger)
	a.Watcher = identity.NewConnectivityWatcher(a.API, cfg.OnlineCheckInterval, logger)

	a.Router.OnChange(func(_ string, v gate.View) { a.show(v) })
	a.Watcher.OnReconnect(func() {
		a.Query.Trigger(context.Background(), session.TriggerReconnect)
	})
	a.Machine.OnLogout(a.revokeRemote)
	a.Machine.OnLogout(func(string) {
		a.Router.Reload(context.Background(), gate.PathLogin)
	})
	return a
}

// Start mounts the session and opens path. When the backend could not be
// reached the watcher starts offline so the first successful probe
// re-validates the kept credential.
func (a *App) Start(ctx context.Context, path string) session.Outcome {
	out := a.Machine.Mount(ctx)
	if out.Kind == session.Transient {
		a.Watcher.SetOnline(false)
		a.printf("Server unreachable: %v\n", out.Err)
	}
	a.Router.Navigate(path)
	return out
}

// Login prompts for credentials and submits the login form.
func (a *App) Login(ctx context.Context) (session.Result, error) {
	username, err := a.Prompter.Input("Username")
	if err != nil {
		return session.Result{}, err
	}
	password, err := a.Prompter.Password("Password")
	if err != nil {
		return session.Result{}, err
	}
	res := a.Flows.Login(ctx, issuance.LoginForm{Username: username, Password: password})
	if !res.Success {
		a.printf("Login failed: %s\n", res.Error)
	}
	return res, nil
}

// Signup prompts for the new account and submits the signup form.
func (a *App) Signup(ctx context.Context) (session.Result, error) {
	name, err := a.Prompter.Input("Full name")
	if err != nil {
		return session.Result{}, err
	}
	username, err := a.Prompter.Input("Username")
	if err != nil {
		return session.Result{}, err
	}
	password, err := a.Prompter.Password("Password")
	if err != nil {
		return session.Result{}, err
	}
	res := a.Flows.Signup(ctx, issuance.SignupForm{Username: username, Password: password, Name: name})
	if !res.Success {
		a.printf("%s: %s\n", issuance.SignupFailed, res.Error)
	}
	return res, nil
}

func (a *App) Logout() {
	a.Machine.Logout()
}

// WhoAmI renders the identity query.
func (a *App) WhoAmI() string {
	r := a.Query.Result()
	switch {
	case r.Data.IsUndefined():
		return "session not resolved yet"
	case r.Data.IsNull():
		return "not signed in"
	}
	u := r.Data.User
	return fmt.Sprintf("%s (%s), role %s, id %d", u.Name, u.Username, u.Role, u.ID)
}

// Close detaches listeners and waits for in-flight logout requests.
func (a *App) Close() {
	a.Router.Close()
	a.Query.Close()
	a.pending.Wait()
}

// revokeRemote tells the server to revoke token. Failures only get logged:
// the local session is already gone.
func (a *App) revokeRemote(token string) {
	if token == "" {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if err := a.API.Logout(ctx, token); err != nil {
			a.logger.Debug().Err(err).Msg("server-side logout failed")
		}
	}()
}

func (a *App) show(v gate.View) {
	if v == nil {
		return
	}
	a.printf("%s", v.Render())
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
