package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) registerRoutes(auth fiber.Handler) {
	// Health check.
	s.App.Get("/health", s.HealthCheck)

	api := s.App.Group("/api")
	if auth != nil {
		api.Use(auth)
	}

	// Agents.
	agents := api.Group("/agents")
	agents.Get("/", s.ListAgents)
	agents.Get("/:id", s.GetAgent)
	agents.Delete("/:id", s.DeleteAgent)

	// Agent lifecycle.
	agents.Post("/:id/deploy", s.DeployAgent)
	agents.Post("/:id/start", s.StartAgent)
	agents.Post("/:id/stop", s.StopAgent)
	agents.Post("/:id/pause", s.PauseAgent)

	// Introspection and interaction.
	agents.Get("/:id/status", s.AgentStatus)
	agents.Get("/:id/logs", s.AgentLogs)
	agents.Post("/:id/interact", s.InteractAgent)

	// WebSocket endpoints.
	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws/agents/:id/logs", websocket.New(s.StreamLogs))
}
