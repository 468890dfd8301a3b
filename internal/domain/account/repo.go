package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Repository interface {
	// Create inserts a and fills in its ID and timestamps.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id int) (*Account, error)
	// GetByUsername matches case-insensitively.
	GetByUsername(ctx context.Context, username string) (*Account, error)
	TouchLogin(ctx context.Context, id int, at time.Time) error
}
