package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docflow/internal/auth"
	"docflow/internal/http/middleware"
	"docflow/internal/repository"
	"docflow/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

type errorMapping struct {
	target error
	status int
	code   string
}

// domainErrors is checked in order. Messages of these errors are built by the
// service layer from ids and filenames and are safe to return.
var domainErrors = []errorMapping{
	{auth.ErrUnauthenticated, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
	{auth.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{service.ErrValidation, fiber.StatusBadRequest, "VALIDATION_FAILED"},
	{service.ErrDuplicate, fiber.StatusConflict, "DUPLICATE"},
	{service.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{repository.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{service.ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{service.ErrExtraction, fiber.StatusBadGateway, "EXTRACTION_FAILED"},
	{service.ErrRender, fiber.StatusBadGateway, "RENDER_FAILED"},
	{service.ErrCircuitBreakerStop, fiber.StatusTooManyRequests, "CIRCUIT_BREAKER_STOP"},
}

// respondError maps a service error onto the error envelope. Unknown errors become
// a generic 500.
func respondError(c *fiber.Ctx, err error) error {
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return writeError(c, m.status, m.code, err.Error())
		}
	}
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		e, ok := err.(*fiber.Error)
		if !ok {
			return respondError(c, err)
		}

		switch e.Code {
		case fiber.StatusBadRequest:
			return writeError(c, e.Code, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, e.Code, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, e.Code, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, e.Code, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, e.Code, "INTERNAL_ERROR", "internal server error")
		}
	}
}
