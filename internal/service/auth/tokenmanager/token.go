package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okuzmin/adminapi/internal/apperrors"
	"github.com/okuzmin/adminapi/internal/models"
	"github.com/okuzmin/adminapi/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 24 * time.Hour

	// Refresh token entropy, 16 bytes == 128 bits
	refreshTokenBytesLen = 16
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Refresh session repo
	sessionRepo repository.SessionRepo
}

func New(cfg Config, sessionRepo repository.SessionRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method: %q", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		key:         cfg.SecretKey,
		alg:         alg,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		sessionRepo: sessionRepo,
	}, nil
}

// GeneratePair issues an access and refresh token pair for the user
// The refresh token is persisted as a session bound to the request metadata
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User, meta models.SessionMeta) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	// Generate JWT access token encoded as string
	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.Username,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	// Generate random opaque refresh token
	b := make([]byte, refreshTokenBytesLen)
	_, err = rand.Read(b)
	if err != nil {
		return pair, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	refresh := hex.EncodeToString(b)

	_, err = m.sessionRepo.Save(ctx, models.Session{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: refresh,
		Fingerprint:  meta.Fingerprint,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
		ExpiresAt:    refreshExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh session. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// TakeRefresh consumes the refresh session: the session is deleted and
// returned as it was, without validating fingerprint or expiry
// Callers validate and must treat any failure as terminal, the token is gone
func (m *TokenManager) TakeRefresh(ctx context.Context, refresh string) (models.Session, error) {
	session, err := m.sessionRepo.Take(ctx, refresh)
	if err != nil {
		return session, fmt.Errorf("error while taking refresh session. Err: %w", err)
	}

	return session, nil
}

// RevokeRefresh deletes the session if it exists
// Missing session is not an error
func (m *TokenManager) RevokeRefresh(ctx context.Context, refresh string) error {
	return m.sessionRepo.Delete(ctx, refresh)
}

// Parse and validate access token, return the subject (username)
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (username string, err error) {
	claims := &AccessTokenClaims{}

	_, err = jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)

	switch {
	case err == nil:
		return claims.Subject, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: %w", apperrors.ErrAccessTokenExpired, err)
	default:
		return "", fmt.Errorf("%w: %w", apperrors.ErrAccessTokenInvalid, err)
	}
}
