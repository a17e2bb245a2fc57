package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/oralex-api/internal/config"
	"github.com/noah-isme/oralex-api/internal/handler"
	"github.com/noah-isme/oralex-api/internal/middleware"
	"github.com/noah-isme/oralex-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	SessionHandler  *handler.SessionHandler
	UploadHandler   *handler.UploadHandler
	AdminHandler    *handler.AdminHandler
	AdminMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	if deps.AuthHandler != nil {
		auth := api.Group("/auth", middleware.RateLimit("auth", 20, time.Minute))
		deps.AuthHandler.Register(auth)
	}

	if deps.SessionHandler != nil {
		session := api.Group("/session")
		deps.SessionHandler.Register(session)
	}

	if deps.UploadHandler != nil {
		upload := api.Group("/upload", middleware.RateLimit("upload", 60, time.Minute))
		deps.UploadHandler.Register(upload)
	}

	if deps.AdminHandler != nil {
		adminMiddleware := deps.AdminMiddleware
		if adminMiddleware == nil {
			adminMiddleware = func(c *fiber.Ctx) error { return c.Next() }
		}
		admin := api.Group("/admin", adminMiddleware)
		deps.AdminHandler.Register(admin)
	}
}
