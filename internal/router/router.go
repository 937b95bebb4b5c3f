package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pleastandby/major-project-sub000/internal/config"
	"github.com/pleastandby/major-project-sub000/internal/handler"
	"github.com/pleastandby/major-project-sub000/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	ReviewHandler     *handler.ReviewHandler
	DependencyChecks  map[string]handler.DependencyCheck
	JWTMiddleware     fiber.Handler
	AIGradeLimiter    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DependencyChecks))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	assignments := api.Group("/assignments", jwtMiddleware)
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(assignments)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.RegisterAssignmentRoutes(assignments)
	}
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.RegisterAssignmentRoutes(assignments)
	}

	submissions := api.Group("/submissions", jwtMiddleware)
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(submissions)
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(submissions, deps.AIGradeLimiter)
	}
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.RegisterSubmissionRoutes(submissions)
		deps.ReviewHandler.Register(api.Group("/review", jwtMiddleware))
	}
}
