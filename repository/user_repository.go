package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"audiovault/core/errs"
	"audiovault/model"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByIDAndToken(ctx context.Context, id, token string) (*model.User, error)
}

// gormUserRepository implements UserRepository with GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new gormUserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// CreateUser inserts a user; a taken username or token yields errs.ErrConflict.
func (r *gormUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: user %q already exists", errs.ErrConflict, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername returns errs.ErrNotFound for an unknown username.
func (r *gormUserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %q", errs.ErrNotFound, username)
		}
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// GetUserByIDAndToken matches both columns exactly; errs.ErrNotFound when
// either does not match.
func (r *gormUserRepository) GetUserByIDAndToken(ctx context.Context, id, token string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ? AND token = ?", id, token).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s by token: %w", id, err)
	}
	return &user, nil
}
