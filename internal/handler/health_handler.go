package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/oralex-api/internal/config"
	"github.com/noah-isme/oralex-api/internal/utils"
)

// HealthResponse is the payload behind the exam platform's liveness check.
// Uptime is reported in whole seconds since the API process started.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Environment   string    `json:"environment"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

var processStart = time.Now()

// HealthCheck returns the handler wired under /api/v1/health. It reports
// process health only; database and redis reachability surface through the
// request metrics instead.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:        "ok",
			Timestamp:     time.Now().UTC(),
			Service:       cfg.AppName,
			Environment:   cfg.AppEnv,
			UptimeSeconds: int64(time.Since(processStart).Seconds()),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
