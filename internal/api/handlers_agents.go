package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/helmcode/agent-fleet/internal/descriptor"
	"github.com/helmcode/agent-fleet/internal/lifecycle"
	"github.com/helmcode/agent-fleet/internal/registry"
)

// ListAgents returns all registry records.
func (s *Server) ListAgents(c *fiber.Ctx) error {
	records, err := s.ctrl.List(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list agents")
	}
	return c.JSON(records)
}

// GetAgent returns a single registry record.
func (s *Server) GetAgent(c *fiber.Ctx) error {
	id := c.Params("id")
	rec, err := s.ctrl.Get(c.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "agent not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load agent")
	}
	return c.JSON(rec)
}

// DeployAgent runs the full deploy pipeline for an agent and reports the
// outcome. The request blocks until the agent is health-verified or the
// pipeline fails and is rolled back.
func (s *Server) DeployAgent(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := validateAgentID(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var req DeployRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res := s.ctrl.Deploy(c.Context(), id, descriptor.AgentConfig{
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Modules:      req.Modules,
		Env:          req.Env,
	})
	return respondResult(c, res)
}

// StartAgent re-runs the deploy pipeline. An empty body reuses the
// configuration persisted by the last deploy.
func (s *Server) StartAgent(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := validateAgentID(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var cfg *descriptor.AgentConfig
	if len(c.Body()) > 0 {
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		cfg = &descriptor.AgentConfig{
			Name:         req.Name,
			Description:  req.Description,
			SystemPrompt: req.SystemPrompt,
			Modules:      req.Modules,
			Env:          req.Env,
		}
	}

	return respondResult(c, s.ctrl.Start(c.Context(), id, cfg))
}

// StopAgent tears the agent's container down and records it stopped.
func (s *Server) StopAgent(c *fiber.Ctx) error {
	return respondResult(c, s.ctrl.Stop(c.Context(), c.Params("id")))
}

// PauseAgent tears the agent's container down and records it paused.
func (s *Server) PauseAgent(c *fiber.Ctx) error {
	return respondResult(c, s.ctrl.Pause(c.Context(), c.Params("id")))
}

// DeleteAgent removes the agent, its registry entry, and its persisted files.
func (s *Server) DeleteAgent(c *fiber.Ctx) error {
	return respondResult(c, s.ctrl.Delete(c.Context(), c.Params("id")))
}

// AgentStatus returns the recorded status plus a live health classification.
func (s *Server) AgentStatus(c *fiber.Ctx) error {
	res := s.ctrl.Status(c.Context(), c.Params("id"))
	if !res.Success {
		code := fiber.StatusInternalServerError
		if res.Error == "Agent not found" {
			code = fiber.StatusNotFound
		}
		return c.Status(code).JSON(res)
	}
	return c.JSON(res)
}

// AgentLogs returns a bounded tail of the agent's container output.
func (s *Server) AgentLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	lines := c.QueryInt("lines", 100)
	if lines < 1 || lines > 5000 {
		return fiber.NewError(fiber.StatusBadRequest, "lines must be between 1 and 5000")
	}

	out, err := s.ctrl.Logs(c.Context(), id, lines)
	if errors.Is(err, registry.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "agent not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch logs")
	}
	return c.JSON(fiber.Map{"agent_id": id, "lines": out})
}

// InteractAgent forwards a message to the agent's process endpoint.
func (s *Server) InteractAgent(c *fiber.Ctx) error {
	id := c.Params("id")

	var req InteractRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}

	resp, err := s.ctrl.Interact(c.Context(), id, req.Message)
	if errors.Is(err, registry.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "agent not found")
	}
	var proxyErr *lifecycle.ProxyError
	if errors.As(err, &proxyErr) {
		return fiber.NewError(fiber.StatusBadGateway, proxyErr.Error())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "interaction failed")
	}
	return c.JSON(resp)
}

// respondResult maps a lifecycle result onto an HTTP response. The result
// body is returned verbatim so clients always see {success, url?, error?}.
func respondResult(c *fiber.Ctx, res lifecycle.Result) error {
	if res.Success {
		return c.JSON(res)
	}
	code := fiber.StatusInternalServerError
	if res.Error == "Agent not found" {
		code = fiber.StatusNotFound
	}
	return c.Status(code).JSON(res)
}
