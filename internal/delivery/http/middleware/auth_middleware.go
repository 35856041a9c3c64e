package middleware

import (
	"fmt"

	"accounts/config"
	deliverycontext "accounts/internal/delivery/context"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// AuthMiddleware guards routes with HTTP Basic credentials checked against the user store.
type AuthMiddleware struct {
	uc        usecase.UserUsecase
	challenge string
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(uc usecase.UserUsecase, cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{
		uc:        uc,
		challenge: fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, cfg.Auth.Realm),
	}
}

// Authenticate resolves the caller from the Authorization header.
// The payload is split on the first ':' so passwords may contain colons; a payload
// without a colon or with an empty username is rejected.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Request.BasicAuth matches the scheme case-insensitively and splits on the first colon.
		username, password, ok := c.Request().BasicAuth()
		if !ok || username == "" {
			return m.unauthorized(c)
		}

		user, err := m.uc.Authenticate(c.Request().Context(), username, password)
		if err != nil {
			if errors.Is(err, domainerrors.ErrUnauthenticated) {
				return m.unauthorized(c)
			}

			return err
		}

		deliverycontext.SetUser(c, user)
		c.SetRequest(c.Request().WithContext(deliverycontext.WithUser(c.Request().Context(), user)))

		return next(c)
	}
}

func (m *AuthMiddleware) unauthorized(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, m.challenge)

	return domainerrors.ErrUnauthenticated
}
