package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/services"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusForError maps service errors to HTTP status codes.
func StatusForError(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, services.ErrStudentNotFound),
		errors.Is(err, services.ErrSchoolNotFound),
		errors.Is(err, services.ErrTermNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyFullyPaid):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidFee),
		errors.Is(err, services.ErrInvalidPhoneNumber),
		errors.Is(err, services.ErrInvalidServiceType),
		errors.Is(err, services.ErrNoSchool),
		errors.Is(err, services.ErrNoActiveTerm),
		errors.Is(err, services.ErrNoActiveSubscription):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrGatewayRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CustomErrorHandler renders errors as JSON. Internal errors are logged and
// their details are not sent to the client.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusForError(err)
	message := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}

	if code >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", code,
			"error", err,
		)
		if code == http.StatusInternalServerError {
			message = "Something went wrong. Please try again later."
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, ErrorResponse{Error: message})
	}
	if writeErr != nil {
		slog.Error("Failed to write error response", "error", writeErr)
	}
}
