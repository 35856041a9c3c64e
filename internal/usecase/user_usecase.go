// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"

	"accounts/internal/domain/entity"
)

const (
	// MaxUsernameLength matches the VARCHAR(255) username column.
	MaxUsernameLength = 255
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new user.
type RegisterInput struct {
	Username string
	Password string
}

// --- Output DTOs ---

// RegisterOutput returns the newly created user's public information.
type RegisterOutput struct {
	User entity.UserSummary
}

// UserUsecase defines the interface for user-related business operations.
// This is the contract that the delivery layer (e.g., API handlers) will depend on.
type UserUsecase interface {
	// Register creates an account. Validation happens before any hashing or store access.
	Register(ctx context.Context, input RegisterInput) (*RegisterOutput, error)

	// Authenticate verifies a username/password pair. Unknown users and wrong passwords
	// both yield domainerrors.ErrUnauthenticated.
	Authenticate(ctx context.Context, username, password string) (*entity.User, error)

	// ListUsers returns every account ordered by id.
	ListUsers(ctx context.Context) ([]entity.UserSummary, error)
}
