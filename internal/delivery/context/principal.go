package context

import (
	"context"

	"accounts/internal/domain/entity"

	"github.com/labstack/echo/v4"
)

// KeyUser is the key for storing the authenticated user.
const KeyUser ContextKey = "user"

// SetUser stores the authenticated user in echo.Context.
func SetUser(c echo.Context, user *entity.User) {
	c.Set(string(KeyUser), user)
}

// GetUser returns the user stored by the authentication gate, or nil.
func GetUser(c echo.Context) *entity.User {
	user, _ := c.Get(string(KeyUser)).(*entity.User)

	return user
}

// WithUser returns a new context carrying the authenticated user.
func WithUser(ctx context.Context, user *entity.User) context.Context {
	return context.WithValue(ctx, KeyUser, user)
}

// GetUserFromContext returns the authenticated user from context.Context, or nil.
func GetUserFromContext(ctx context.Context) *entity.User {
	user, _ := ctx.Value(KeyUser).(*entity.User)

	return user
}
