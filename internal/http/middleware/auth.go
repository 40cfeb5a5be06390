package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docflow/internal/auth"
)

// CallerLocalKey stores the authenticated auth.Caller in Fiber's context locals.
const CallerLocalKey = "caller"

// Authenticate verifies the bearer token and puts the caller in the request context.
func Authenticate(v *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return auth.ErrUnauthenticated
		}
		caller, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			return err
		}
		c.Locals(CallerLocalKey, caller)
		c.SetUserContext(auth.WithCaller(c.UserContext(), caller))
		return c.Next()
	}
}

// Require rejects callers whose role may not perform op.
func Require(op auth.Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := auth.FromContext(c.UserContext())
		if !ok {
			return auth.ErrUnauthenticated
		}
		if err := auth.Authorize(caller.Role, op); err != nil {
			return err
		}
		return c.Next()
	}
}
