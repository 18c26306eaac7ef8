// Package identity registers users and checks their credentials.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"audiovault/core/errs"
	"audiovault/logger"
	"audiovault/model"
	"audiovault/repository"
)

// maxUsernameLength matches the users.username column.
const maxUsernameLength = 255

// Service issues and verifies user credentials.
type Service struct {
	users repository.UserRepository
	// newID is swapped in tests.
	newID func() string
}

func NewService(users repository.UserRepository) *Service {
	return &Service{users: users, newID: uuid.NewString}
}

// Register creates a user with a fresh id and token.
func (s *Service) Register(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	user := &model.User{
		ID:       s.newID(),
		Username: username,
		Token:    s.newID(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	logger.Info("[Register] user created", logger.String("user_id", user.ID), logger.String("username", username))
	return user, nil
}

// Authenticate returns the user, token included, given only the username.
// Anyone who knows a username can recover its token this way; callers that
// need a second factor use AuthenticateWithToken.
func (s *Service) Authenticate(ctx context.Context, username string) (*model.User, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	logger.Warn("[Login] token returned for username-only login",
		logger.String("user_id", user.ID), logger.String("username", user.Username))
	return user, nil
}

// AuthenticateWithToken requires the token to match the username's user.
func (s *Service) AuthenticateWithToken(ctx context.Context, username, token string) (*model.User, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(user.Token), []byte(token)) != 1 {
		logger.Warn("[Login] token mismatch", logger.String("username", user.Username))
		return nil, errs.ErrUnauthorized
	}
	return user, nil
}

// Verify succeeds only when userID and token belong to the same user.
func (s *Service) Verify(ctx context.Context, userID, token string) (*model.User, error) {
	if userID == "" || token == "" {
		return nil, errs.ErrUnauthorized
	}
	user, err := s.users.GetUserByIDAndToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) lookup(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", errs.ErrInvalidInput)
	}
	return s.users.GetUserByUsername(ctx, username)
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", errs.ErrInvalidInput)
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return fmt.Errorf("%w: username longer than %d characters", errs.ErrInvalidInput, maxUsernameLength)
	}
	return nil
}
