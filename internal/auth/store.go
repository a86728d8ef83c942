package auth

import (
	"context"
	"errors"
	"time"
)

// User is the stored account record.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Store errors. Callers branch on these to pick HTTP status codes.
var (
	ErrUserNotFound  = errors.New("auth: user not found")
	ErrUsernameTaken = errors.New("auth: username taken")
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, u User) error
	ByUsername(ctx context.Context, username string) (User, error)
}
