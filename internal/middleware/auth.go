package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/separator/internal/auth"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/pkg/response"
)

// AuthMiddleware resolves the caller's identity. Callers without
// credentials are served as the anonymous user; credentials that are
// present but invalid are refused.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Identify sets the userId local from a bearer token, or to the anonymous
// sentinel when no Authorization header is sent
func (m *AuthMiddleware) Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := m.authenticator.Authenticate(c.Get("Authorization"))
		switch {
		case errors.Is(err, auth.ErrNoCredentials):
			c.Locals("userId", model.AnonymousUser)
			return c.Next()
		case err != nil:
			return response.Unauthorized(c, err.Error())
		}

		c.Locals("userId", identity.UserID)
		c.Locals("email", identity.Email)
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok && userID != "" {
		return userID
	}
	return model.AnonymousUser
}
