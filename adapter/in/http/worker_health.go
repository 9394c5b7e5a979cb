package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by any backing store this admin surface might be
// wired against (redisstore, pgstore's HealthChecker, mongostore).
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	backendName string
	backend     Pinger
}

func NewHealthHandler(backendName string, backend Pinger) *HealthHandler {
	return &HealthHandler{backendName: backendName, backend: backend}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.backend == nil {
		checks[h.backendName] = "not configured"
		healthy = false
	} else if err := h.backend.Ping(ctx); err != nil {
		checks[h.backendName] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks[h.backendName] = "healthy"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !healthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
