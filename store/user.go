package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrExists is returned when a create collides with an existing
	// email or username.
	ErrExists = errors.New("user already exists")
)

// Role is the closed set of authorization roles a user can hold. The
// role travels inside signed tokens, so renaming a value invalidates
// tokens issued before the rename.
type Role string

const (
	RoleCommon    Role = "common"
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCommon, RolePublisher, RoleAdmin:
		return true
	}
	return false
}

// User is a stored credential record. PasswordHash is a PHC-encoded
// argon2id hash and never leaves the store layer.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore is the credential storage collaborator. There is one
// production implementation (Postgres) and one in-memory double for
// tests.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
