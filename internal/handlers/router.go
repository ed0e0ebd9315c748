package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/okuzmin/adminapi/internal/handlers/middleware"
	"github.com/okuzmin/adminapi/internal/logger"
	"github.com/okuzmin/adminapi/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	auth := http.NewServeMux()
	auth.Handle("POST /login", handleLogin(authService, logger))
	auth.Handle("POST /refresh_tokens", handleRefreshTokens(authService, logger))
	auth.Handle("POST /logout", handleLogout(authService, logger))
	auth.Handle("GET /user", withAuth(handleCurrentUser()))

	// Admin endpoints are an explicit registry of typed handlers, one route
	// per entity operation, resolved at startup
	admin := http.NewServeMux()
	admin.Handle("GET /users", handleListUsers(userService, logger))
	admin.Handle("POST /users", handleCreateUser(userService, logger))
	admin.Handle("GET /users/{id}", handleGetUser(userService, logger))
	admin.Handle("POST /users/{id}/password", handleUpdatePassword(userService, logger))
	admin.Handle("DELETE /users/{id}", handleDeleteUser(userService, logger))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", auth))
	root.Handle("/admin/", http.StripPrefix("/admin", withAuth(admin)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login user with username and password
	// Has to return apperrors.ErrBadCredentials on unknown user or wrong
	// password, without distinguishing the two
	Login(ctx context.Context, username string, password string, meta models.SessionMeta) (models.TokenPair, error)

	// Rotate the refresh token: consume the presented one, issue a new pair
	// Has to return apperrors.ErrRefreshTokenMissing, ErrSessionNotFound,
	// ErrFingerprintMismatch or ErrSessionExpired; all of them terminal
	Refresh(ctx context.Context, refresh string, fingerprint string, meta models.SessionMeta) (models.TokenPair, error)

	// Revoke the session matching the token, idempotent
	Logout(ctx context.Context, refresh string) error

	// Authenticate request by its Authorization header
	Auth(ctx context.Context, r *http.Request) (models.User, error)

	// Set refresh cookie to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request cookie, empty string if not set
	GetRefreshCookie(r *http.Request) string
}

type userService interface {
	CreateUser(ctx context.Context, username string, password string) (models.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, password string) (models.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}
