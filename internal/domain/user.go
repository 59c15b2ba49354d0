package domain

import (
	"context"
	"time"
)

// User is the signed-in user as reported by the backend's current-user endpoint.
type User struct {
	ID       string
	Email    string
	FullName string
	Role     string
	Active   bool
}

// DisplayName returns the full name, falling back to the email address.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// Credentials is the result of a successful credential exchange.
type Credentials struct {
	Token  string
	UserID string
}

// Registration is the backend's confirmation of a created account.
type Registration struct {
	ID       string
	Email    string
	FullName string
}

// Account is a stored account of the development backend.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Profile      Profile
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountRepository defines persistence operations for development backend accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
}
