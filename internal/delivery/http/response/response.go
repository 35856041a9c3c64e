// Package response renders the JSON bodies of the HTTP API.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorBody is the single shape of every failure response.
type ErrorBody struct {
	Error string `json:"error"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// StatusResponse is returned by the health check.
type StatusResponse struct {
	Status string `json:"status"`
}

// Success writes data with the given status.
func Success(c echo.Context, statusCode int, data any) error {
	return c.JSON(statusCode, data)
}

// Error writes {"error": message}. An empty message falls back to the status text.
func Error(c echo.Context, statusCode int, message string) error {
	if message == "" {
		message = http.StatusText(statusCode)
	}

	return c.JSON(statusCode, ErrorBody{Error: message})
}
