package api

import (
	"github.com/gofiber/fiber/v2"
)

// HealthCheck verifies API and registry connectivity.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	if _, err := s.ctrl.List(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"errors": []string{"registry: " + err.Error()},
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
