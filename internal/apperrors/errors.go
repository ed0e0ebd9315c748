package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Login with unknown username or wrong password
	// Callers must not reveal which one it was
	ErrBadCredentials = errors.New("bad credentials")

	ErrRefreshTokenMissing = errors.New("refresh token missing")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")

	ErrAccessTokenExpired = errors.New("access token expired")
	ErrAccessTokenInvalid = errors.New("access token invalid")
)
