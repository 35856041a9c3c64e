// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"

	deliverycontext "accounts/internal/delivery/context"
	"accounts/internal/delivery/http/response"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// RegisterRequest is the body of POST /users.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,notblank,max=255,excludes=:"`
	Password string `json:"password" validate:"required"`
}

// UserHandler holds dependencies for user-related handlers.
type UserHandler struct {
	uc     usecase.UserUsecase
	logger *slog.Logger
}

// NewUserHandler is the constructor for UserHandler, injected by Fx.
func NewUserHandler(uc usecase.UserUsecase, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		uc:     uc,
		logger: logger,
	}
}

// Register handles the user registration request.
func (h *UserHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return domainerrors.ErrInvalidInput.WithMessage("malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.uc.Register(c.Request().Context(), usecase.RegisterInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, response.UserResponse{
		ID:       output.User.ID,
		Username: output.User.Username,
	})
}

// ListUsers returns every account to an authenticated caller.
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.uc.ListUsers(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}

	body := make([]response.UserResponse, 0, len(users))
	for _, u := range users {
		body = append(body, response.UserResponse{ID: u.ID, Username: u.Username})
	}

	if caller := deliverycontext.GetUser(c); caller != nil {
		deliverycontext.GetLoggerOrDefault(c.Request().Context(), h.logger).Debug("Users listed",
			slog.Int64("caller_id", caller.ID),
			slog.Int("count", len(body)),
		)
	}

	return response.Success(c, http.StatusOK, body)
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, response.StatusResponse{Status: "ok"})
}
