// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"accounts/internal/domain/entity"
)

// ErrUserNotFound is a domain-specific error returned when a user is not found.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the standard operations for user persistence.
// The application layer will depend on this interface, not the concrete implementation.
type UserRepository interface {
	// Create inserts the user and fills in ID and CreatedAt.
	// A username that already exists yields domainerrors.ErrUsernameTaken.
	Create(ctx context.Context, user *entity.User) error

	// FindByUsername returns the user with exactly this username, or ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*entity.User, error)

	// List returns every user ordered by id.
	List(ctx context.Context) ([]entity.UserSummary, error)
}
