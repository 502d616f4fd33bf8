// Package api implements the Fiber HTTP API for the agent-fleet orchestrator.
//
// Agent id validation: ids must be 1-64 lowercase alphanumeric characters,
// hyphens, or underscores. Lowercase-only because container names and data
// directories are derived from a lowercased id, so mixed-case ids would
// collide with their lowercase twins.
package api

import (
	"fmt"
	"regexp"
)

// DeployRequest is the payload for POST /api/agents/:id/deploy.
type DeployRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	SystemPrompt string            `json:"system_prompt"`
	Modules      []string          `json:"modules"`
	Env          map[string]string `json:"env"`
}

// StartRequest is the payload for POST /api/agents/:id/start. All fields are
// optional; an empty body reuses the configuration persisted by the last
// deploy.
type StartRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	SystemPrompt string            `json:"system_prompt"`
	Modules      []string          `json:"modules"`
	Env          map[string]string `json:"env"`
}

// InteractRequest is the payload for POST /api/agents/:id/interact.
type InteractRequest struct {
	Message string `json:"message" validate:"required"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// validAgentIDRe validates agent ids: lowercase alphanumeric, hyphens,
// underscores, 1-64 chars.
var validAgentIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// validateAgentID checks that an id is safe for use in Docker container names
// and filesystem paths.
func validateAgentID(id string) error {
	if !validAgentIDRe.MatchString(id) {
		return fmt.Errorf("agent id must be 1-64 lowercase alphanumeric characters, hyphens, or underscores")
	}
	return nil
}
