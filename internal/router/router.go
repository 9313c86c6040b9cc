package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/intervo-dev/intervo-go-api/internal/config"
	"github.com/intervo-dev/intervo-go-api/internal/handler"
	"github.com/intervo-dev/intervo-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	InterviewHandler    *handler.InterviewHandler
	QuestionBankHandler *handler.QuestionBankHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.InterviewHandler != nil {
		interviews := api.Group("/interviews", jwtMiddleware)
		deps.InterviewHandler.Register(interviews)
	}

	if deps.QuestionBankHandler != nil {
		questions := api.Group("/questions", jwtMiddleware)
		deps.QuestionBankHandler.Register(questions)
	}
}
