package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okuzmin/adminapi/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	// Username matched exactly, no case normalization
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// List all users ordered by creation time
	ListUsers(ctx context.Context) ([]models.User, error)

	// Replace user password hash
	// If user not found must return apperrors.ErrUserNotFound
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) (models.User, error)

	// Delete user
	// If user not found must return apperrors.ErrUserNotFound
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// Refresh session repository interface
type SessionRepo interface {
	// Persist session
	// Token value must be unique
	Save(ctx context.Context, session models.Session) (models.Session, error)

	// Atomically delete session by token value and return it
	// A token may be taken at most once: concurrent calls with the same token
	// must yield one session and apperrors.ErrSessionNotFound for the rest
	Take(ctx context.Context, token string) (models.Session, error)

	// Delete session by token value
	// Not existing session is not an error
	Delete(ctx context.Context, token string) error

	// Delete all sessions of the user, return their count
	DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete sessions expired before the given moment, return their count
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Storage aggregates repositories over single db connection or transaction
type Storage interface {
	User() UserRepo
	Session() SessionRepo

	// Run fn within db transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
