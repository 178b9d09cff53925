package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/separator/internal/model"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers set by
// Traefik ForwardAuth. Requests that reach us without them are anonymous.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			userID = model.AnonymousUser
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get("X-User-Email"))

		return c.Next()
	}
}
