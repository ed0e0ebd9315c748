package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/okuzmin/adminapi/internal/apperrors"
	"github.com/okuzmin/adminapi/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const saveSession = `-- name: SaveSession
INSERT INTO user_sessions (id, user_id, refresh_token, fingerprint, ip, user_agent, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, refresh_token, fingerprint, ip, user_agent, created_at, expires_at
`

func (r *SessionRepo) Save(ctx context.Context, session models.Session) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, saveSession,
		session.ID,
		session.UserID,
		session.RefreshToken,
		session.Fingerprint,
		session.IP,
		session.UserAgent,
		session.CreatedAt,
		session.ExpiresAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const takeSession = `-- name: TakeSession
DELETE FROM user_sessions
WHERE refresh_token = $1
RETURNING id, user_id, refresh_token, fingerprint, ip, user_agent, created_at, expires_at
`

// Take deletes the session and returns it in a single statement
// Row level atomicity of DELETE guarantees that concurrent redemption of one
// token yields exactly one winner, the rest observe ErrSessionNotFound
func (r *SessionRepo) Take(ctx context.Context, token string) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, takeSession, token)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

const deleteSession = `-- name: DeleteSession
DELETE FROM user_sessions
WHERE refresh_token = $1
`

// Delete is idempotent: removing a missing session is not an error
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.DB.Exec(ctx, deleteSession, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const deleteUserSessions = `-- name: DeleteUserSessions
DELETE FROM user_sessions
WHERE user_id = $1
`

func (r *SessionRepo) DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteUserSessions, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const deleteExpiredSessions = `-- name: DeleteExpiredSessions
DELETE FROM user_sessions
WHERE expires_at < $1
`

func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredSessions, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshToken, &s.Fingerprint, &s.IP, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt)
	return s, err
}
