package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okuzmin/adminapi/internal/apperrors"
	"github.com/okuzmin/adminapi/internal/models"
	"github.com/okuzmin/adminapi/internal/repository"
	"github.com/okuzmin/adminapi/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
	defaultRefreshCookiePath = "/auth"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to compare user passwords on login
	// BcryptHasher is used if not set
	Hasher PasswordHasher

	// Names for token transports
	// Defaults are used if not set
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string
	RefreshCookiePath string
}

// AuthService drives the session lifecycle: login, refresh with rotation,
// logout and current user resolution
type AuthService struct {
	token  *tokenmanager.TokenManager
	hasher PasswordHasher

	userRepo repository.UserRepo

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	refreshCookiePath string

	// Hash compared against when the user is unknown, so that the
	// unknown-user path costs the same as a wrong password
	decoyHash string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)
	setDefaultString(&cfg.RefreshCookiePath, defaultRefreshCookiePath)

	decoyHash, err := hasher.Hash("decoy password to equalize login timing")
	if err != nil {
		return nil, fmt.Errorf("error while preparing decoy hash. Err: %w", err)
	}

	return &AuthService{
		token:             token,
		hasher:            hasher,
		userRepo:          userRepo,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		refreshCookiePath: cfg.RefreshCookiePath,
		decoyHash:         decoyHash,
	}, nil
}

// Login verifies credentials and starts a new session
// Returns apperrors.ErrBadCredentials on unknown user and wrong password both
func (s *AuthService) Login(ctx context.Context, username string, password string, meta models.SessionMeta) (models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Burn a compare anyway: the unknown-user path must not return faster
		_ = s.hasher.Compare(s.decoyHash, password)
		return pair, apperrors.ErrBadCredentials
	case err != nil:
		return pair, fmt.Errorf("user lookup failed: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return pair, apperrors.ErrBadCredentials
	}

	pair, err = s.token.GeneratePair(ctx, user, meta)
	if err != nil {
		return pair, fmt.Errorf("error while generating token pair. Err: %w", err)
	}

	return pair, nil
}

// Refresh rotates the session: the presented token is consumed exactly once
// and a brand new pair is issued
//
// The session is deleted before fingerprint and expiry validation, so every
// failure is terminal and the client has to login again
func (s *AuthService) Refresh(ctx context.Context, refresh string, fingerprint string, meta models.SessionMeta) (models.TokenPair, error) {
	var pair models.TokenPair

	if refresh == "" {
		return pair, apperrors.ErrRefreshTokenMissing
	}

	session, err := s.token.TakeRefresh(ctx, refresh)
	if err != nil {
		return pair, err
	}

	if session.Fingerprint != fingerprint {
		// Possible token theft, the session is gone already
		return pair, apperrors.ErrFingerprintMismatch
	}

	if session.ExpiresAt.Before(time.Now()) {
		return pair, apperrors.ErrSessionExpired
	}

	user, err := s.userRepo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return pair, fmt.Errorf("session owner lookup failed: %w", err)
	}

	pair, err = s.token.GeneratePair(ctx, user, meta)
	if err != nil {
		return pair, fmt.Errorf("error while generating token pair. Err: %w", err)
	}

	return pair, nil
}

// Logout revokes the session matching the token
// Idempotent: unknown or empty token is not an error
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}

	return s.token.RevokeRefresh(ctx, refresh)
}

// CurrentUser resolves a bearer access token to the user it was issued for
func (s *AuthService) CurrentUser(ctx context.Context, access string) (models.User, error) {
	username, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Token is valid but its subject is gone
		return models.User{}, fmt.Errorf("%w: subject not found: %w", apperrors.ErrAccessTokenInvalid, err)
	case err != nil:
		return models.User{}, fmt.Errorf("subject lookup failed: %w", err)
	}

	return user, nil
}

// Auth authenticates the request by its Authorization header
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)

	scheme, access, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) {
		return models.User{}, apperrors.ErrAccessTokenInvalid
	}

	return s.CurrentUser(ctx, strings.TrimSpace(access))
}

// SetTokenPairToResponse writes the refresh cookie
// The cookie is path scoped to the auth endpoints and never readable by scripts
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     s.refreshCookiePath,
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetRefreshCookie returns the refresh token from the request cookie
// Empty string if the cookie is not set
func (s *AuthService) GetRefreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}
