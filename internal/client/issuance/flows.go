// Package issuance runs the login and signup forms.
package issuance

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/gate"
	"github.com/medcabinet/medcabinet/internal/client/session"
)

// SignupFailed is shown for any rejected signup, whatever the server said.
const SignupFailed = "Signup failed"

type LoginForm struct {
	Username string
	Password string
}

func (f LoginForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, validation.Required),
		validation.Field(&f.Password, validation.Required),
	)
}

type SignupForm struct {
	Username string
	Password string
	Name     string
}

func (f SignupForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&f.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&f.Name, validation.Required, validation.Length(1, 255)),
	)
}

// Sessions is the part of the session machine the forms drive.
type Sessions interface {
	Login(ctx context.Context, username, password string) session.Result
	Adopt(token string, user apiclient.User) error
}

type SignupAPI interface {
	Signup(ctx context.Context, username, password, name string) (*apiclient.AuthResponse, error)
}

type Navigator interface {
	Navigate(path string) (string, gate.Decision)
}

// Flows submits the forms and moves the navigator to the dashboard once a
// credential is held.
type Flows struct {
	sessions Sessions
	api      SignupAPI
	nav      Navigator
	logger   zerolog.Logger
}

// NewFlows wires the forms. nav may be nil for headless callers.
func NewFlows(sessions Sessions, api SignupAPI, nav Navigator, logger zerolog.Logger) *Flows {
	return &Flows{sessions: sessions, api: api, nav: nav, logger: logger}
}

// Login submits f. A failed attempt leaves the current session and stored
// credential as they were.
func (fl *Flows) Login(ctx context.Context, f LoginForm) session.Result {
	f.Username = strings.TrimSpace(f.Username)
	if err := f.Validate(); err != nil {
		return session.Result{Error: err.Error()}
	}

	res := fl.sessions.Login(ctx, f.Username, f.Password)
	if !res.Success {
		fl.logger.Debug().Str("username", f.Username).Msg("login rejected")
		return res
	}
	fl.enter()
	return res
}

// Signup creates the account and signs in with the returned credential.
func (fl *Flows) Signup(ctx context.Context, f SignupForm) session.Result {
	f.Username = strings.TrimSpace(f.Username)
	f.Name = strings.TrimSpace(f.Name)
	if err := f.Validate(); err != nil {
		return session.Result{Error: err.Error()}
	}

	resp, err := fl.api.Signup(ctx, f.Username, f.Password, f.Name)
	if err != nil {
		fl.logger.Debug().Err(err).Str("username", f.Username).Msg("signup rejected")
		return session.Result{Error: SignupFailed}
	}
	if err := fl.sessions.Adopt(resp.Token, resp.User); err != nil {
		fl.logger.Error().Err(err).Msg("store credential after signup")
		return session.Result{Error: SignupFailed}
	}

	u := resp.User
	fl.enter()
	return session.Result{Success: true, User: &u}
}

func (fl *Flows) enter() {
	if fl.nav != nil {
		fl.nav.Navigate(gate.PathDashboard)
	}
}
