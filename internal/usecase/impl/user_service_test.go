package impl

import (
	"context"
	"strings"
	"testing"
	"time"

	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/infra/auth"
	mockRepo "accounts/internal/mocks/repository"
	mockService "accounts/internal/mocks/service"
	"accounts/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUserService_Register_Success(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.hasher.EXPECT().Hash("s3cret").Return("$2a$10$hash", nil)
	fx.userRepo.EXPECT().
		Create(ctx, mock.MatchedBy(func(u *entity.User) bool {
			return u.Username == "alice" && u.PasswordHash == "$2a$10$hash"
		})).
		Run(func(_ context.Context, u *entity.User) {
			u.ID = 1
			u.CreatedAt = time.Now()
		}).
		Return(nil)

	out, err := fx.service.Register(ctx, usecase.RegisterInput{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, entity.UserSummary{ID: 1, Username: "alice"}, out.User)
}

func TestUserService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input usecase.RegisterInput
	}{
		{name: "missing username", input: usecase.RegisterInput{Password: "s3cret"}},
		{name: "whitespace username", input: usecase.RegisterInput{Username: "  \t", Password: "s3cret"}},
		{name: "missing password", input: usecase.RegisterInput{Username: "alice"}},
		{name: "both missing", input: usecase.RegisterInput{}},
		{name: "username too long", input: usecase.RegisterInput{Username: strings.Repeat("a", 256), Password: "s3cret"}},
		{name: "username with colon", input: usecase.RegisterInput{Username: "bob:x", Password: "pw"}},
		{name: "password too long", input: usecase.RegisterInput{Username: "alice", Password: strings.Repeat("p", 73)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no hasher or repository expectations: nothing may be called
			fx := createTestUserService(t)

			out, err := fx.service.Register(context.Background(), tt.input)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, domainerrors.ErrInvalidInput))
		})
	}
}

func TestUserService_Register_BoundaryLengthsAccepted(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	username := strings.Repeat("é", usecase.MaxUsernameLength)
	password := strings.Repeat("p", usecase.MaxPasswordBytes)

	fx.hasher.EXPECT().Hash(password).Return("hash", nil)
	fx.userRepo.EXPECT().Create(ctx, mock.AnythingOfType("*entity.User")).Return(nil)

	_, err := fx.service.Register(ctx, usecase.RegisterInput{Username: username, Password: password})
	assert.NoError(t, err)
}

func TestUserService_Register_DuplicateUsername(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.hasher.EXPECT().Hash("other").Return("hash", nil)
	fx.userRepo.EXPECT().
		Create(ctx, mock.AnythingOfType("*entity.User")).
		Return(errors.WithStack(domainerrors.ErrUsernameTaken))

	out, err := fx.service.Register(ctx, usecase.RegisterInput{Username: "alice", Password: "other"})
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, domainerrors.ErrUsernameTaken))
}

func TestUserService_Register_StoreUnavailable(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.hasher.EXPECT().Hash("s3cret").Return("hash", nil)
	fx.userRepo.EXPECT().
		Create(ctx, mock.AnythingOfType("*entity.User")).
		Return(domainerrors.NewStoreUnavailableError(errors.New("connection reset"), "create user"))

	_, err := fx.service.Register(ctx, usecase.RegisterInput{Username: "alice", Password: "s3cret"})
	assert.True(t, domainerrors.IsStoreUnavailable(err))
}

func TestUserService_Register_HashFailure(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.hasher.EXPECT().Hash("s3cret").Return("", errors.New("entropy exhausted"))

	_, err := fx.service.Register(ctx, usecase.RegisterInput{Username: "alice", Password: "s3cret"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrInternal))

	var appErr domainerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 500, appErr.HTTPCode())
	assert.NotContains(t, appErr.Message(), "entropy")
}

func TestUserService_Authenticate_Success(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()
	stored := &entity.User{ID: 1, Username: "alice", PasswordHash: "hash"}

	fx.userRepo.EXPECT().FindByUsername(ctx, "alice").Return(stored, nil)
	fx.hasher.EXPECT().Check("s3cret", "hash").Return(true)

	user, err := fx.service.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, stored, user)
}

func TestUserService_Authenticate_WrongPassword(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.userRepo.EXPECT().
		FindByUsername(ctx, "alice").
		Return(&entity.User{ID: 1, Username: "alice", PasswordHash: "hash"}, nil)
	fx.hasher.EXPECT().Check("wrong", "hash").Return(false)

	user, err := fx.service.Authenticate(ctx, "alice", "wrong")
	assert.Nil(t, user)
	assert.Equal(t, domainerrors.ErrUnauthenticated, err)
}

func TestUserService_Authenticate_UnknownUserRunsDecoyCompare(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.userRepo.EXPECT().FindByUsername(ctx, "ghost").Return(nil, repository.ErrUserNotFound)
	fx.hasher.EXPECT().Check("s3cret", testDecoyHash).Return(false).Once()

	user, err := fx.service.Authenticate(ctx, "ghost", "s3cret")
	assert.Nil(t, user)
	// same error value as a wrong password
	assert.Equal(t, domainerrors.ErrUnauthenticated, err)
}

func TestUserService_Authenticate_EmptyUsername(t *testing.T) {
	fx := createTestUserService(t)

	user, err := fx.service.Authenticate(context.Background(), "", "s3cret")
	assert.Nil(t, user)
	assert.Equal(t, domainerrors.ErrUnauthenticated, err)
}

func TestUserService_Authenticate_StoreUnavailable(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.userRepo.EXPECT().
		FindByUsername(ctx, "alice").
		Return(nil, domainerrors.NewStoreUnavailableError(errors.New("timeout"), "find user by username"))

	_, err := fx.service.Authenticate(ctx, "alice", "s3cret")
	assert.True(t, domainerrors.IsStoreUnavailable(err))
	assert.False(t, errors.Is(err, domainerrors.ErrUnauthenticated))
}

func TestUserService_ListUsers(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()
	want := []entity.UserSummary{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}

	fx.userRepo.EXPECT().List(ctx).Return(want, nil)

	got, err := fx.service.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUserService_ListUsers_StoreUnavailable(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.userRepo.EXPECT().
		List(ctx).
		Return(nil, domainerrors.NewStoreUnavailableError(errors.New("timeout"), "list users"))

	got, err := fx.service.ListUsers(ctx)
	assert.Nil(t, got)
	assert.True(t, domainerrors.IsStoreUnavailable(err))
}

func TestUserService_Register_ColonUsernameMessage(t *testing.T) {
	fx := createTestUserService(t)

	_, err := fx.service.Register(context.Background(), usecase.RegisterInput{Username: "bob:x", Password: "pw"})

	var appErr domainerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "username must not contain ':'", appErr.Message())
}

func TestNewUserService_DecoyUsesConfiguredCost(t *testing.T) {
	for _, cost := range []int{bcrypt.MinCost, bcrypt.MinCost + 2} {
		uc, err := NewUserService(UserServiceParams{
			UserRepo: mockRepo.NewMockUserRepository(t),
			Hasher:   auth.NewBcryptHasherWithCost(cost),
			Logger:   newDiscardLogger(),
		})
		require.NoError(t, err)

		srv, ok := uc.(*userService)
		require.True(t, ok)
		got, err := bcrypt.Cost([]byte(srv.decoyHash))
		require.NoError(t, err)
		assert.Equal(t, cost, got)
	}
}

func TestNewUserService_DecoyHashFailure(t *testing.T) {
	hasher := mockService.NewMockPasswordHasher(t)
	hasher.EXPECT().Hash(decoyPassword).Return("", errors.New("entropy exhausted"))

	uc, err := NewUserService(UserServiceParams{
		UserRepo: mockRepo.NewMockUserRepository(t),
		Hasher:   hasher,
		Logger:   newDiscardLogger(),
	})
	assert.Nil(t, uc)
	assert.Error(t, err)
}
