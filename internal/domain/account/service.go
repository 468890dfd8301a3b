package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medcabinet/medcabinet/internal/platform/auth"
)

// DefaultRole is assigned to every self-registered account.
const DefaultRole = auth.RoleDoctor

// ValidationError is returned when signup or login input is incomplete.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

type Service struct {
	repo        Repository
	tokens      *auth.TokenIssuer
	revocations *auth.TokenRevocationStore
	logger      zerolog.Logger
	hashCost    int
	now         func() time.Time
	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

type ServiceOption func(*Service)

// WithHashCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func WithHashCost(cost int) ServiceOption {
	return func(s *Service) { s.hashCost = cost }
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, tokens *auth.TokenIssuer, revocations *auth.TokenRevocationStore, opts ...ServiceOption) *Service {
	s := &Service{
		repo:        repo,
		tokens:      tokens,
		revocations: revocations,
		logger:      zerolog.Nop(),
		hashCost:    bcrypt.DefaultCost,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("medcabinet-dummy-password"), s.hashCost)
	return s
}

type signupInput struct {
	Username string
	Password string
	Name     string
}

func (in signupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&in.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&in.Name, validation.Required, validation.Length(1, 255)),
	)
}

type loginInput struct {
	Username string
	Password string
}

func (in loginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

// Signup creates a doctor account and issues its first credential.
func (s *Service) Signup(ctx context.Context, username, password, name string) (*AuthResponse, error) {
	in := signupInput{
		Username: strings.TrimSpace(username),
		Password: password,
		Name:     strings.TrimSpace(name),
	}
	if err := in.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, &ValidationError{Err: errors.New("password: the length must be no more than 72 bytes")}
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &Account{
		Username:     in.Username,
		Name:         in.Name,
		Role:         DefaultRole,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().Int("user_id", a.ID).Str("role", a.Role).Msg("account created")
	return s.issue(a)
}

// Login verifies the password and issues a new credential. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	in := loginInput{Username: strings.TrimSpace(username), Password: password}
	if err := in.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	a, err := s.repo.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.TouchLogin(ctx, a.ID, s.now().UTC()); err != nil {
		s.logger.Warn().Err(err).Int("user_id", a.ID).Msg("record last login")
	}
	return s.issue(a)
}

// Me returns the user behind a verified credential.
func (s *Service) Me(ctx context.Context, userID int) (*User, error) {
	a, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := a.ToUser()
	return &u, nil
}

// Logout revokes the presented credential until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return auth.ErrInvalidToken
	}
	s.revocations.RevokeClaims(claims)
	s.logger.Info().Str("user_id", claims.Subject).Msg("credential revoked")
	return nil
}

func (s *Service) issue(a *Account) (*AuthResponse, error) {
	token, _, err := s.tokens.Issue(a.ID, a.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: a.ToUser()}, nil
}
