package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/separator/internal/auth"
	"github.com/makeasinger/separator/internal/model"
)

// AuthHandler answers Traefik ForwardAuth checks so the gateway can stamp
// X-User-* headers before requests reach the API
type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// Verify handles GET /auth/verify
// @Summary      ForwardAuth verification
// @Description  200 with X-User-* headers for a valid or absent token (anonymous), 401 otherwise
// @Tags         Auth
// @Success      200 "OK"
// @Failure      401 "Unauthorized"
// @Router       /auth/verify [get]
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	identity, err := h.authenticator.Authenticate(c.Get("Authorization"))
	if errors.Is(err, auth.ErrNoCredentials) {
		c.Set("X-User-Id", model.AnonymousUser)
		return c.SendStatus(fiber.StatusOK)
	}
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", identity.UserID)
	if identity.Email != "" {
		c.Set("X-User-Email", identity.Email)
	}
	if identity.Name != "" {
		c.Set("X-User-Name", identity.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
