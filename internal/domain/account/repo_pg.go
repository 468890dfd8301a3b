package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcabinet/medcabinet/internal/platform/db"
)

type accountRepoPG struct {
	pool querier
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &accountRepoPG{pool: pool}
}

const accountCols = `id, username, full_name, role, password_hash, created_at, updated_at, last_login_at`

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, full_name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		a.Username, a.Name, a.Role, a.PasswordHash,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "users_username_key") {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *accountRepoPG) GetByID(ctx context.Context, id int) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM users WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

func (r *accountRepoPG) GetByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM users WHERE lower(username) = lower($1)`, username)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return a, nil
}

func (r *accountRepoPG) TouchLogin(ctx context.Context, id int, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch login %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Name, &a.Role, &a.PasswordHash,
		&a.CreatedAt, &a.UpdatedAt, &a.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
