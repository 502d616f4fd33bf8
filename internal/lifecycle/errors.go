package lifecycle

import "fmt"

// Stage identifies which deploy pipeline stage failed.
type Stage string

const (
	StageConfigWrite Stage = "config_write"
	StageImageBuild  Stage = "image_build"
	StageBringUp     Stage = "bring_up"
	StageHealthCheck Stage = "health_check"
)

// StageError wraps the error from a single pipeline stage so callers can
// tell a config write failure from a build, bring-up, or health failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ProxyError reports a failed interact call: the agent was unreachable or
// returned a non-success response. Surfaced directly, never retried.
type ProxyError struct {
	AgentID string
	Err     error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxying to agent %s: %v", e.AgentID, e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}
