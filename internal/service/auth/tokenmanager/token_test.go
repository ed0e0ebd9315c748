package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okuzmin/adminapi/internal/apperrors"
	"github.com/okuzmin/adminapi/internal/models"
	"github.com/okuzmin/adminapi/internal/repository/postgres"
	"github.com/okuzmin/adminapi/internal/testutil"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testMeta := models.SessionMeta{
		Fingerprint: "device-fingerprint",
		IP:          "127.0.0.1",
		UserAgent:   "test-agent",
	}

	// Create user in tx and return the manager bound to the same tx
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, accessTTL time.Duration, refreshTTL time.Duration, fn func(m *TokenManager, user models.User)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			cfg := Config{
				SecretKey:  "test-secret-key",
				AccessTTL:  accessTTL,
				RefreshTTL: refreshTTL,
			}

			userRepo := &postgres.UserRepo{DB: tx}
			user, err := userRepo.CreateUser(t.Context(), "testuser", "hashed_password")
			require.NoError(t, err, "user should be created without errors")

			tokenManager, err := New(cfg, &postgres.SessionRepo{DB: tx})
			require.NoError(t, err, "token manager should be created without errors")

			fn(tokenManager, user)
		})
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"}, nil)
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails without secret", func(t *testing.T) {
		_, err := New(Config{}, nil)
		require.Error(t, err, "empty secret key must not be accepted")
	})

	t.Run("GeneratePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)

					require.NoError(t, err)

					assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
					assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.Access.ExpiresAt, time.Second)
					assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
					assert.Len(t, pair.Refresh.Value, 32, "refresh token is 16 random bytes hex encoded")
					assert.WithinDuration(t, time.Now().Add(24*time.Hour), pair.Refresh.ExpiresAt, time.Second)
				},
			)
		})

		t.Run("access claims", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					// Parse and verify the access token
					token, err := jwt.ParseWithClaims(pair.Access.Value, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
						return []byte("test-secret-key"), nil
					})
					require.NoError(t, err)
					require.True(t, token.Valid, "access token should be valid")

					claims, ok := token.Claims.(*AccessTokenClaims)
					require.True(t, ok, "claims should be of type AccessTokenClaims")
					assert.Equal(t, user.Username, claims.Subject, "subject in token should be the username")
					assert.NotEmpty(t, claims.ID, "token has to has jti")
					assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
					assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Second, "expires at should be 15 minutes from now")

					assert.WithinDuration(t, pair.Access.ExpiresAt, claims.ExpiresAt.Time, 0, "access expires at should match token pair")
				},
			)
		})

		t.Run("session bound to metadata", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					session, err := tokenManager.TakeRefresh(t.Context(), pair.Refresh.Value)
					require.NoError(t, err)

					assert.Equal(t, user.ID, session.UserID)
					assert.Equal(t, testMeta.Fingerprint, session.Fingerprint, "session should remember fingerprint")
					assert.Equal(t, testMeta.IP, session.IP, "session should remember request IP")
					assert.Equal(t, testMeta.UserAgent, session.UserAgent, "session should remember user agent")
				},
			)
		})

		t.Run("generate different tokens", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair1, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					pair2, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different")
					assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
				},
			)
		})
	})

	t.Run("TakeRefresh", func(t *testing.T) {
		t.Run("take token once", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					session, err := tokenManager.TakeRefresh(t.Context(), pair.Refresh.Value)
					require.NoError(t, err, "taking refresh session should not return an error")

					require.Equal(t, user.ID, session.UserID)
					require.WithinDuration(t, pair.Refresh.ExpiresAt, session.ExpiresAt, time.Second, "session expiration should match the issued token")
				},
			)
		})

		t.Run("take token twice fails", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					_, err = tokenManager.TakeRefresh(t.Context(), pair.Refresh.Value)
					require.NoError(t, err, "taking refresh session should not return an error")

					_, err = tokenManager.TakeRefresh(t.Context(), pair.Refresh.Value)
					require.Error(t, err, "taking the same session again should return an error")
					require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
				},
			)
		})

		t.Run("take expired token returns the session", func(t *testing.T) {
			// Expiry is validated by the caller, the manager returns whatever it took
			withTx(pg.Pool, t, 1*time.Second, -1*time.Minute,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					session, err := tokenManager.TakeRefresh(t.Context(), pair.Refresh.Value)
					require.NoError(t, err, "expired session is still taken")
					require.True(t, session.ExpiresAt.Before(time.Now()), "session should be expired")
				},
			)
		})
	})

	t.Run("RevokeRefresh", func(t *testing.T) {
		t.Run("revoked token can't be taken", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					err = tokenManager.RevokeRefresh(t.Context(), pair.Refresh.Value)
					require.NoError(t, err)

					_, err = tokenManager.TakeRefresh(t.Context(), pair.Refresh.Value)
					require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
				},
			)
		})

		t.Run("revoke unknown token is not an error", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					err := tokenManager.RevokeRefresh(t.Context(), "never-existed")
					require.NoError(t, err, "revoking unknown token should be silent")
				},
			)
		})
	})

	t.Run("ParseAccess", func(t *testing.T) {
		t.Run("valid token", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err, "token pair should be generated without errors")

					username, err := tokenManager.ParseAccess(t.Context(), pair.Access.Value)
					require.NoError(t, err, "valid token should be parsed without errors")
					require.Equal(t, user.Username, username)
				},
			)
		})

		t.Run("not a token", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					_, err := tokenManager.ParseAccess(t.Context(), "invalid token")
					require.Error(t, err, "parsing even not a token should return an error")
					require.ErrorIs(t, err, apperrors.ErrAccessTokenInvalid)
				},
			)
		})

		t.Run("expired token", func(t *testing.T) {
			withTx(pg.Pool, t, 1*time.Second, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					pair, err := tokenManager.GeneratePair(t.Context(), user, testMeta)
					require.NoError(t, err)

					// Wait for the token to expire
					time.Sleep(time.Second)

					_, err = tokenManager.ParseAccess(t.Context(), pair.Access.Value)
					require.Error(t, err, "token has to become expired")
					require.ErrorIs(t, err, apperrors.ErrAccessTokenExpired)
				},
			)
		})

		t.Run("not signed token", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					// Create valid but unsigned token
					token := jwt.NewWithClaims(
						jwt.SigningMethodNone,
						AccessTokenClaims{
							RegisteredClaims: jwt.RegisteredClaims{
								ID:        uuid.NewString(),
								Subject:   user.Username,
								IssuedAt:  jwt.NewNumericDate(time.Now()),
								ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
							},
						},
					)
					access, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
					require.NoError(t, err)

					_, err = tokenManager.ParseAccess(t.Context(), access)
					require.Error(t, err, "valid token with empty alg must fail")
					require.ErrorIs(t, err, apperrors.ErrAccessTokenInvalid)
				},
			)
		})

		t.Run("token signed with other key", func(t *testing.T) {
			withTx(pg.Pool, t, 15*time.Minute, 24*time.Hour,
				func(tokenManager *TokenManager, user models.User) {
					token := jwt.NewWithClaims(
						jwt.SigningMethodHS256,
						AccessTokenClaims{
							RegisteredClaims: jwt.RegisteredClaims{
								Subject:   user.Username,
								ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
							},
						},
					)
					access, err := token.SignedString([]byte("other-secret-key"))
					require.NoError(t, err)

					_, err = tokenManager.ParseAccess(t.Context(), access)
					require.ErrorIs(t, err, apperrors.ErrAccessTokenInvalid)
				},
			)
		})
	})
}
