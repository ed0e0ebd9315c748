package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okuzmin/adminapi/internal/models"
	"github.com/okuzmin/adminapi/internal/repository"
	"github.com/okuzmin/adminapi/internal/service/auth"
)

// UserService manages user accounts for the admin panel
type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
	}
}

func (s *UserService) CreateUser(ctx context.Context, username string, password string) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, username, hash)
	if err != nil {
		return user, err
	}

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.storage.User().ListUsers(ctx)
}

func (s *UserService) UpdatePassword(ctx context.Context, userID uuid.UUID, password string) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	return s.storage.User().UpdatePassword(ctx, userID, hash)
}

// DeleteUser removes the user and all their sessions in one transaction
// The FK cascade would cover the sessions too, but the explicit delete keeps
// the behavior independent of schema details
func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err := st.User().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		if _, err := st.Session().DeleteForUser(ctx, user.ID); err != nil {
			return err
		}

		return st.User().DeleteUser(ctx, user.ID)
	})
}
