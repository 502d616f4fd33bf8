// Package main implements the agent process that runs inside each container.
// It serves the contract the orchestrator relies on: GET /health for liveness
// probes, GET /info for identity, and POST /process for message handling.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// ProcessRequest is the payload for POST /process.
type ProcessRequest struct {
	Message string            `json:"message"`
	Context map[string]string `json:"context"`
}

// ProcessResponse is the structured reply to POST /process.
type ProcessResponse struct {
	Response  string   `json:"response"`
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := os.Getenv("AGENT_CONFIG_PATH")
	if configPath == "" {
		configPath = "/app/config.yaml"
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting agent",
		"agent", cfg.AgentID,
		"name", cfg.Agent.Name,
		"modules", cfg.Agent.Modules,
		"port", cfg.Port,
	)

	app := fiber.New(fiber.Config{
		AppName:               "AgentFleet Agent",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "agent_id": cfg.AgentID})
	})

	app.Get("/info", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"agent_id":    cfg.AgentID,
			"name":        cfg.Agent.Name,
			"description": cfg.Agent.Description,
			"modules":     cfg.Agent.Modules,
		})
	})

	app.Post("/process", func(c *fiber.Ctx) error {
		var req ProcessRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if req.Message == "" {
			return fiber.NewError(fiber.StatusBadRequest, "message is required")
		}

		slog.Info("processing message", "agent", cfg.AgentID, "bytes", len(req.Message))
		return c.JSON(ProcessResponse{
			Response:  process(cfg, req),
			Status:    "running",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			ToolsUsed: cfg.Agent.Modules,
		})
	})

	go func() {
		if err := app.Listen(":" + strconv.Itoa(cfg.Port)); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down agent", "agent", cfg.AgentID)
	if err := app.Shutdown(); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// process produces the agent's reply. The configured system prompt frames the
// answer and the enabled modules are reported as the tools consulted.
func process(cfg *Config, req ProcessRequest) string {
	if cfg.Agent.SystemPrompt != "" {
		return cfg.Agent.Name + " processed: " + req.Message
	}
	return "processed: " + req.Message
}
