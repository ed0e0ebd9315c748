package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a single refresh token grant
// One user may have many sessions (one per device), each bound to the
// fingerprint the client presented at issuance
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RefreshToken string
	Fingerprint  string
	IP           string
	UserAgent    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// SessionMeta request metadata recorded with every issued session
type SessionMeta struct {
	Fingerprint string
	IP          string
	UserAgent   string
}
