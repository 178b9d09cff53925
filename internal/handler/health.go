package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/pkg/response"
)

// Monitor is the operator-facing side of the scheduler
type Monitor interface {
	HealthCheck(ctx context.Context) *model.Health
	Statistics(ctx context.Context) (*model.QueueStatistics, error)
}

type HealthHandler struct {
	monitor Monitor
}

func NewHealthHandler(m Monitor) *HealthHandler {
	return &HealthHandler{monitor: m}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Healthy when Redis answers, the breaker is not open and the queue has room
// @Tags         Operations
// @Produce      json
// @Success      200 {object} model.Health
// @Failure      503 {object} model.Health
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	health := h.monitor.HealthCheck(c.Context())
	if !health.Healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	return response.OK(c, health)
}

// Stats handles GET /stats
// @Summary      Queue statistics
// @Description  Queue depths, in-flight counts, breaker state and lifetime counters
// @Tags         Operations
// @Produce      json
// @Success      200 {object} model.QueueStatistics
// @Failure      500 {object} response.ErrorResponse
// @Router       /stats [get]
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.monitor.Statistics(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, stats)
}
