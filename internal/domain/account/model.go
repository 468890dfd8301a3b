package account

import "time"

// User is the public identity returned by login, signup and /api/auth/me.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Account is the stored row behind a User.
type Account struct {
	ID           int
	Username     string
	Name         string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

func (a *Account) ToUser() User {
	return User{
		ID:       a.ID,
		Username: a.Username,
		Name:     a.Name,
		Role:     a.Role,
	}
}

// AuthResponse is the body of a successful login or signup.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
