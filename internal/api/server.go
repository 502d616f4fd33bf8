package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/helmcode/agent-fleet/internal/lifecycle"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	App  *fiber.App
	ctrl *lifecycle.Controller
}

// NewServer creates a Fiber app with middleware and registers all routes.
// When authSecret is non-empty the /api group requires a bearer token.
func NewServer(ctrl *lifecycle.Controller, authSecret []byte) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "AgentFleet API",
		ErrorHandler: globalErrorHandler,
	})

	// Middleware.
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(requestLogger())

	s := &Server{
		App:  app,
		ctrl: ctrl,
	}

	var auth fiber.Handler
	if len(authSecret) > 0 {
		auth = bearerAuth(NewTokenVerifier(authSecret))
	}
	s.registerRoutes(auth)
	return s
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	slog.Info("starting HTTP server", "addr", addr)
	return s.App.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	slog.Info("shutting down HTTP server")
	return s.App.Shutdown()
}
