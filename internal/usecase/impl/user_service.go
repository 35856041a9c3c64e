// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	deliverycontext "accounts/internal/delivery/context"
	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/domain/service"
	"accounts/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// decoyPassword is hashed once at startup. Unknown usernames are checked against that
// hash so they cost one comparison at the configured work factor, like a wrong password.
const decoyPassword = "accounts-unknown-user"

var (
	errMissingCredentials = domainerrors.ErrInvalidInput
	errUsernameTooLong    = domainerrors.ErrInvalidInput.WithMessage("username must be at most 255 characters")
	errUsernameHasColon   = domainerrors.ErrInvalidInput.WithMessage("username must not contain ':'")
	errPasswordTooLong    = domainerrors.ErrInvalidInput.WithMessage("password must be at most 72 bytes")
)

// userService implements the UserUsecase interface.
type userService struct {
	userRepo repository.UserRepository
	hasher   service.PasswordHasher
	logger   *slog.Logger

	decoyHash string
}

// UserServiceParams holds dependencies for UserService, injected by Fx.
type UserServiceParams struct {
	fx.In

	UserRepo repository.UserRepository
	Hasher   service.PasswordHasher
	Logger   *slog.Logger
}

// NewUserService is the constructor for userService. It receives all dependencies as interfaces.
func NewUserService(params UserServiceParams) (usecase.UserUsecase, error) {
	decoyHash, err := params.Hasher.Hash(decoyPassword)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare decoy hash")
	}

	return &userService{
		userRepo:  params.UserRepo,
		hasher:    params.Hasher,
		logger:    params.Logger,
		decoyHash: decoyHash,
	}, nil
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *userService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register validates the input, hashes the password and inserts the account.
func (srv *userService) Register(ctx context.Context, input usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	if err := validateRegistration(input); err != nil {
		return nil, err
	}

	hash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrInternal, err.Error())
	}

	user := &entity.User{
		Username:     input.Username,
		PasswordHash: hash,
	}

	if err := srv.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domainerrors.ErrUsernameTaken) {
			srv.log(ctx).Info("Registration rejected, username taken", slog.String("username", input.Username))

			return nil, err
		}

		srv.log(ctx).Error("Failed to create user", slog.Any("error", err))

		return nil, err
	}

	srv.log(ctx).Info("User registered", slog.Int64("user_id", user.ID), slog.String("username", user.Username))

	return &usecase.RegisterOutput{User: user.Summary()}, nil
}

func validateRegistration(input usecase.RegisterInput) error {
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return errMissingCredentials
	}
	if utf8.RuneCountInString(input.Username) > usecase.MaxUsernameLength {
		return errUsernameTooLong
	}
	// Basic credentials split on the first ':', so such a name could never sign in.
	if strings.Contains(input.Username, ":") {
		return errUsernameHasColon
	}
	if len(input.Password) > usecase.MaxPasswordBytes {
		return errPasswordTooLong
	}

	return nil
}

// Authenticate resolves the account for a username/password pair.
func (srv *userService) Authenticate(ctx context.Context, username, password string) (*entity.User, error) {
	if username == "" {
		return nil, domainerrors.ErrUnauthenticated
	}

	user, err := srv.userRepo.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		srv.hasher.Check(password, srv.decoyHash)
		srv.log(ctx).Info("Authentication failed", slog.String("username", username))

		return nil, domainerrors.ErrUnauthenticated
	}
	if err != nil {
		srv.log(ctx).Error("Failed to look up user", slog.Any("error", err))

		return nil, err
	}

	if !srv.hasher.Check(password, user.PasswordHash) {
		srv.log(ctx).Info("Authentication failed", slog.String("username", username))

		return nil, domainerrors.ErrUnauthenticated
	}

	return user, nil
}

// ListUsers returns all accounts without their hashes.
func (srv *userService) ListUsers(ctx context.Context) ([]entity.UserSummary, error) {
	users, err := srv.userRepo.List(ctx)
	if err != nil {
		srv.log(ctx).Error("Failed to list users", slog.Any("error", err))

		return nil, err
	}

	return users, nil
}
