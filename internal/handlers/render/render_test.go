package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_JSON(t *testing.T) {
	t.Parallel()

	type response struct {
		Username string `json:"username"`
	}

	t.Run("renders data with 200", func(t *testing.T) {
		rec := httptest.NewRecorder()

		JSON(rec, response{Username: "admin"})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		require.JSONEq(t, `{"username": "admin"}`, rec.Body.String())
	})

	t.Run("renders data with given status", func(t *testing.T) {
		rec := httptest.NewRecorder()

		JSONWithStatus(rec, response{Username: "admin"}, http.StatusCreated)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.JSONEq(t, `{"username": "admin"}`, rec.Body.String())
	})
}

func Test_ServiceError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()

	ServiceError(rec, "Invalid refresh token", http.StatusUnauthorized)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error": "service_error", "message": "Invalid refresh token"}`, rec.Body.String())
}

func Test_BindAndValidate(t *testing.T) {
	t.Parallel()

	type request struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}

	post := func(body string) (*httptest.ResponseRecorder, *http.Request) {
		return httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	t.Run("ok", func(t *testing.T) {
		rec, req := post(`{"username": "admin", "password": "StrongEnoughPassword"}`)

		data, err := BindAndValidate[request](rec, req)

		require.NoError(t, err)
		require.Equal(t, "admin", data.Username)
		require.Equal(t, "StrongEnoughPassword", data.Password)
	})

	t.Run("broken json", func(t *testing.T) {
		rec, req := post(`{"username": `)

		_, err := BindAndValidate[request](rec, req)

		require.Error(t, err)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), DecodingErrorType)
	})

	t.Run("wrong field type names the field", func(t *testing.T) {
		rec, req := post(`{"username": 42, "password": "StrongEnoughPassword"}`)

		_, err := BindAndValidate[request](rec, req)

		require.Error(t, err)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "Invalid data type for field 'username'")
	})

	t.Run("missing required fields reported by json name", func(t *testing.T) {
		rec, req := post(`{}`)

		_, err := BindAndValidate[request](rec, req)

		require.Error(t, err)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.JSONEq(t, `{
			"error": "validation_failed",
			"message": "Request validation failed",
			"fields": {
				"username": "This field is required",
				"password": "This field is required"
			}
		}`, rec.Body.String())
	})

	t.Run("too short values", func(t *testing.T) {
		rec, req := post(`{"username": "a", "password": "short"}`)

		_, err := BindAndValidate[request](rec, req)

		require.Error(t, err)
		require.JSONEq(t, `{
			"error": "validation_failed",
			"message": "Request validation failed",
			"fields": {
				"username": "Value is too short (minimum 2)",
				"password": "Value is too short (minimum 8)"
			}
		}`, rec.Body.String())
	})
}
