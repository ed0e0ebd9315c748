// Package userctx carries the authenticated user through the request context,
// from the auth middleware down to the handlers.
package userctx

import (
	"context"

	"github.com/okuzmin/adminapi/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// Create a new context with the authenticated user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// Extract the authenticated user from the context
// ok is false if no auth middleware ran for this request
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}
