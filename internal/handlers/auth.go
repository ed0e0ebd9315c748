package handlers

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okuzmin/adminapi/internal/apperrors"
	"github.com/okuzmin/adminapi/internal/handlers/render"
	"github.com/okuzmin/adminapi/internal/handlers/userctx"
	"github.com/okuzmin/adminapi/internal/logger"
	"github.com/okuzmin/adminapi/internal/models"
)

// Token pair as the client sees it
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
}

func newTokenResponse(pair models.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.Access.Value,
		TokenType:    "bearer",
		RefreshToken: pair.Refresh.Value,
	}
}

// Request metadata recorded with the session
func sessionMeta(r *http.Request, fingerprint string) models.SessionMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	return models.SessionMeta{
		Fingerprint: fingerprint,
		IP:          ip,
		UserAgent:   r.UserAgent(),
	}
}

func handleLogin(auth authService, logger logger.Logger) http.Handler {
	type request struct {
		Username    string `json:"username" validate:"required"`
		Password    string `json:"password" validate:"required"`
		Fingerprint string `json:"fingerprint" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := auth.Login(r.Context(), data.Username, data.Password, sessionMeta(r, data.Fingerprint))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrBadCredentials):
				// Same answer for unknown user and wrong password
				render.ServiceError(w, "Incorrect username or password", http.StatusUnauthorized)
			default:
				logger.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

func handleRefreshTokens(auth authService, logger logger.Logger) http.Handler {
	// Token is not 'required' by validation on purpose: a missing token is an
	// authentication failure (401), not a malformed request (400)
	type request struct {
		RefreshToken string `json:"refresh_token"`
		Fingerprint  string `json:"fingerprint"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := auth.Refresh(r.Context(), data.RefreshToken, data.Fingerprint, sessionMeta(r, data.Fingerprint))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenMissing),
				errors.Is(err, apperrors.ErrSessionNotFound),
				errors.Is(err, apperrors.ErrFingerprintMismatch),
				errors.Is(err, apperrors.ErrSessionExpired):
				// One message for every failure class, the specific cause
				// stays server side
				logger.Info("refresh rejected", "error", err.Error())
				render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			default:
				logger.Error("refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, newTokenResponse(pair))
	})
}

func handleLogout(auth authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := auth.Logout(r.Context(), auth.GetRefreshCookie(r))
		if err != nil {
			// Still answer 204: logout must always succeed for the client
			logger.Error("logout failed", "error", err.Error())
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleCurrentUser() http.Handler {
	type response struct {
		ID        uuid.UUID `json:"id"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: user.ID, Username: user.Username, CreatedAt: user.CreatedAt})
	})
}
