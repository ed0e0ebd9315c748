package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/okuzmin/adminapi/internal/apperrors"
	"github.com/okuzmin/adminapi/internal/handlers/render"
	"github.com/okuzmin/adminapi/internal/handlers/userctx"
	"github.com/okuzmin/adminapi/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware rejects requests without a valid access token and puts the
// resolved user into the request context
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.Auth(r.Context(), r)
			if err != nil {
				switch {
				case errors.Is(err, apperrors.ErrAccessTokenInvalid),
					errors.Is(err, apperrors.ErrAccessTokenExpired):
					render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				default:
					// Persistence failure, not an authentication one
					render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				}
				return
			}
			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
