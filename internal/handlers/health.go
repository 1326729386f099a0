package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything the health check can probe
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// PingContext calls f
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// SessionCounter reports in-flight ingestion sessions
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db       Pinger
	redis    Pinger
	sessions SessionCounter
}

// NewHealthHandler creates a new health handler. redis may be nil.
func NewHealthHandler(db Pinger, redis Pinger, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, sessions: sessions}
}

// Handle responds with server health status. A failed database ping returns 503.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK
	checks := fiber.Map{}

	if err := h.db.PingContext(ctx); err != nil {
		log.Printf("❌ [HEALTH] Database ping failed: %v", err)
		checks["database"] = "unavailable"
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.PingContext(ctx); err != nil {
			log.Printf("⚠️ [HEALTH] Redis ping failed: %v", err)
			checks["redis"] = "unavailable"
			if code == fiber.StatusOK {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	}

	resp := fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.sessions != nil {
		if n, err := h.sessions.Count(ctx); err == nil {
			resp["active_sessions"] = n
		}
	}

	return c.Status(code).JSON(resp)
}
