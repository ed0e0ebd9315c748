package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/okuzmin/adminapi/internal/logger"
	"github.com/okuzmin/adminapi/internal/repository/postgres"
	"github.com/okuzmin/adminapi/internal/service/auth"
	"github.com/okuzmin/adminapi/internal/service/auth/tokenmanager"
	"github.com/okuzmin/adminapi/internal/service/user"
)

// Full http stack over a rolled back db transaction
// Handlers, middlewares and services are real, only the logger is silenced
type testEnv struct {
	router http.Handler
	users  *user.UserService
}

func newTestEnv(t *testing.T, tx pgx.Tx) *testEnv {
	t.Helper()

	storage := postgres.NewStorage(tx)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key"}, storage.Session())
	require.NoError(t, err, "token manager should be created without errors")

	authSvc, err := auth.NewService(auth.Config{}, tokenManager, storage.User())
	require.NoError(t, err, "auth service should be created without errors")

	userSvc := user.NewService(nil, storage)

	return &testEnv{
		router: NewRouter(authSvc, userSvc, logger.NewNoOpLogger()),
		users:  userSvc,
	}
}

func (e *testEnv) do(t *testing.T, method string, target string, body any, mods ...func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("User-Agent", "test-agent")
	for _, mod := range mods {
		mod(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createUser(t *testing.T, username string, password string) {
	t.Helper()

	_, err := e.users.CreateUser(t.Context(), username, password)
	require.NoError(t, err, "test user should be created")
}

// Login through the http endpoint and return the issued pair
func (e *testEnv) login(t *testing.T, username string, password string, fingerprint string) tokenResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username":    username,
		"password":    password,
		"fingerprint": fingerprint,
	})
	require.Equal(t, http.StatusOK, rec.Code, "login should succeed: %s", rec.Body.String())

	return decodeBody[tokenResponse](t, rec)
}

func withBearer(access string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value), "response should be valid json: %s", rec.Body.String())
	return value
}
