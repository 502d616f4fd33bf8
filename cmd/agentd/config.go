package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/helmcode/agent-fleet/internal/descriptor"
)

// Config holds the agent process configuration. Values are loaded from the
// YAML file the orchestrator mounts into the container and can be overridden
// by environment variables.
type Config struct {
	AgentID string
	Port    int
	Agent   descriptor.AgentConfig
}

// LoadConfig reads the mounted YAML config and applies environment overrides.
// Environment variables take precedence over YAML values.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Port: descriptor.ContainerPort}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg.Agent); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if v := os.Getenv("AGENT_NAME"); v != "" {
		cfg.Agent.Name = v
	}
	if v := os.Getenv("AGENT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AGENT_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent id is required (set AGENT_ID)")
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = cfg.AgentID
	}

	return cfg, nil
}
