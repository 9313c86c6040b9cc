package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/intervo-dev/intervo-go-api/internal/config"
	"github.com/intervo-dev/intervo-go-api/internal/utils"
)

// HealthResponse reports service identity and liveness for probes.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	Environment    string    `json:"environment"`
	SandboxBackend string    `json:"sandbox_backend"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
}

// HealthCheck returns a handler answering liveness probes. Uptime is counted
// from handler construction, which coincides with process start.
func HealthCheck(cfg config.Config) fiber.Handler {
	started := time.Now()

	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:         "ok",
			Timestamp:      time.Now().UTC(),
			Service:        cfg.AppName,
			Environment:    cfg.AppEnv,
			SandboxBackend: cfg.SandboxBackend,
			UptimeSeconds:  time.Since(started).Seconds(),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
