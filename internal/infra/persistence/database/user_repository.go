package database

import (
	"context"

	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/infra/persistence/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// userRepository implements the domain.UserRepository interface using GORM.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository is the constructor for userRepository.
// It returns the repository as a domain.UserRepository interface, adhering to dependency inversion.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create inserts the user in a single statement. The UNIQUE constraint on username decides
// which of two concurrent registrations wins.
func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	if err := repo.db.WithContext(ctx).Create(userM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return errors.WithStack(domainerrors.ErrUsernameTaken)
		}

		return domainerrors.NewStoreUnavailableError(err, "create user")
	}

	user.ID = userM.ID
	user.CreatedAt = userM.CreatedAt

	return nil
}

// FindByUsername looks the user up on the primary so a just-registered account can sign in
// before replicas catch up.
func (repo *userRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	var userM model.UserModel

	err := repo.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("username = ?", username).
		Take(&userM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}

		return nil, domainerrors.NewStoreUnavailableError(err, "find user by username")
	}

	return toUserDomain(&userM), nil
}

// List returns every account ordered by id. The hash column is never selected.
func (repo *userRepository) List(ctx context.Context) ([]entity.UserSummary, error) {
	var rows []model.UserSummaryRow

	err := repo.db.WithContext(ctx).
		Model(&model.UserModel{}).
		Select("id", "username").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, domainerrors.NewStoreUnavailableError(err, "list users")
	}

	users := make([]entity.UserSummary, 0, len(rows))
	for _, row := range rows {
		users = append(users, entity.UserSummary{ID: row.ID, Username: row.Username})
	}

	return users, nil
}

func fromUserDomain(user *entity.User) *model.UserModel {
	return &model.UserModel{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
}

func toUserDomain(userM *model.UserModel) *entity.User {
	return &entity.User{
		ID:           userM.ID,
		Username:     userM.Username,
		PasswordHash: userM.PasswordHash,
		CreatedAt:    userM.CreatedAt,
	}
}
