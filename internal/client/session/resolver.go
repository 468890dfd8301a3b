// Package session owns the client's belief about who is signed in.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/credentials"
)

// Kind tags the result of a resolution.
type Kind int

const (
	// NoCredential means nothing was stored; no request was made.
	NoCredential Kind = iota
	// OK means the backend confirmed the credential.
	OK
	// InvalidCredential means the backend answered 401. The stored
	// credential has been cleared.
	InvalidCredential
	// Transient means the backend could not be asked. The stored
	// credential is kept.
	Transient
)

func (k Kind) String() string {
	switch k {
	case NoCredential:
		return "no_credential"
	case OK:
		return "ok"
	case InvalidCredential:
		return "invalid_credential"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Outcome is what a resolution produced. User is set only for OK, Err only
// for Transient.
type Outcome struct {
	Kind Kind
	User *apiclient.User
	Err  error
}

// IdentityAPI resolves a credential to its user.
type IdentityAPI interface {
	Me(ctx context.Context, token string) (*apiclient.User, error)
}

// Resolver turns the stored credential into a confirmed user.
type Resolver struct {
	store  credentials.Store
	api    IdentityAPI
	logger zerolog.Logger
}

func NewResolver(store credentials.Store, api IdentityAPI, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, api: api, logger: logger}
}

// Resolve never fails; every failure mode is an Outcome kind. Only a 401
// clears the store.
func (r *Resolver) Resolve(ctx context.Context) Outcome {
	token, ok := r.store.Get()
	if !ok {
		return Outcome{Kind: NoCredential}
	}

	user, err := r.api.Me(ctx, token)
	switch {
	case err == nil:
		return Outcome{Kind: OK, User: user}
	case apiclient.IsUnauthorized(err):
		r.clearIfCurrent(token)
		return Outcome{Kind: InvalidCredential}
	default:
		r.logger.Debug().Err(err).Msg("identity check failed, keeping credential")
		return Outcome{Kind: Transient, Err: err}
	}
}

// clearIfCurrent drops the rejected token unless a newer one was stored
// while the request was in flight.
func (r *Resolver) clearIfCurrent(rejected string) {
	if current, ok := r.store.Get(); ok && current != rejected {
		r.logger.Debug().Msg("credential replaced during resolution, not clearing")
		return
	}
	if err := r.store.Clear(); err != nil {
		r.logger.Warn().Err(err).Msg("clear rejected credential")
	}
}
