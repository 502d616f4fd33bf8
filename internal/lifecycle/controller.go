// Package lifecycle implements the agent deployment state machine: the
// façade composing descriptor generation, the container runtime, health
// monitoring, and the registry into deploy / start / stop / pause / delete
// / status / logs / interact operations.
package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/helmcode/agent-fleet/internal/agentclient"
	"github.com/helmcode/agent-fleet/internal/descriptor"
	"github.com/helmcode/agent-fleet/internal/events"
	"github.com/helmcode/agent-fleet/internal/health"
	"github.com/helmcode/agent-fleet/internal/registry"
	"github.com/helmcode/agent-fleet/internal/runtime"
)

// Health classifications from the live status probe, distinct from the
// lifecycle status stored in the registry record.
const (
	HealthHealthy     = "healthy"
	HealthUnhealthy   = "unhealthy"
	HealthUnreachable = "unreachable"
)

// notFoundMessage is the user-visible error for operations on agents with
// no registry entry. Absence means "not running", a normal outcome.
const notFoundMessage = "Agent not found"

// Result is the outcome of a lifecycle operation.
type Result struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResult is the outcome of a status query: the recorded lifecycle
// status plus a live health classification of the agent's endpoint.
type StatusResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	URL     string `json:"url,omitempty"`
	Health  string `json:"health,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Config holds the controller's wiring parameters.
type Config struct {
	DataDir      string // root for per-agent config and descriptor files
	BuildContext string // directory holding the runtime image's Dockerfile
	ImageTag     string // shared runtime image tag
}

// Controller orchestrates agent container lifecycles. A per-agent-id mutex
// serializes lifecycle operations for the same agent, so concurrent deploy
// and stop calls cannot interleave.
type Controller struct {
	store   registry.Store
	runtime runtime.ContainerRuntime
	monitor *health.Monitor
	agents  *agentclient.Client
	events  *events.Publisher // nil when no broker is configured
	cfg     Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Controller.
func New(store registry.Store, rt runtime.ContainerRuntime, monitor *health.Monitor, agents *agentclient.Client, pub *events.Publisher, cfg Config) *Controller {
	if cfg.ImageTag == "" {
		cfg.ImageTag = descriptor.DefaultImage
	}
	return &Controller{
		store:   store,
		runtime: rt,
		monitor: monitor,
		agents:  agents,
		events:  pub,
		cfg:     cfg,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex guarding one agent id, creating it on first use.
func (c *Controller) lock(agentID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[agentID] = l
	}
	return l
}

// Deploy runs the full build-and-bring-up pipeline for an agent. On any
// stage failure the container is torn down and the registry entry removed
// before the failure is reported.
func (c *Controller) Deploy(ctx context.Context, agentID string, cfg descriptor.AgentConfig) Result {
	l := c.lock(agentID)
	l.Lock()
	defer l.Unlock()

	res := c.runPipeline(ctx, agentID, cfg)
	if res.Success {
		c.events.Publish(agentID, events.TypeDeployed, res.URL, "")
	}
	return res
}

// Start re-runs the deploy pipeline for a stopped or paused agent. When cfg
// is nil the configuration persisted by the last deploy is reused, so a
// paused agent restarts without reconfiguration; regeneration from the same
// config yields the same descriptor.
func (c *Controller) Start(ctx context.Context, agentID string, cfg *descriptor.AgentConfig) Result {
	l := c.lock(agentID)
	l.Lock()
	defer l.Unlock()

	if cfg == nil {
		loaded, err := descriptor.LoadConfig(c.cfg.DataDir, agentID)
		if err != nil {
			return Result{Success: false, Error: "agent has no persisted configuration: " + err.Error()}
		}
		cfg = loaded
	}

	res := c.runPipeline(ctx, agentID, *cfg)
	if res.Success {
		c.events.Publish(agentID, events.TypeStarted, res.URL, "")
	}
	return res
}

// runPipeline executes the ordered deploy stages. Caller holds the agent lock.
func (c *Controller) runPipeline(ctx context.Context, agentID string, cfg descriptor.AgentConfig) Result {
	containerName := descriptor.ContainerName(agentID)
	url := descriptor.AgentURL(agentID)
	paths := descriptor.AgentPaths(c.cfg.DataDir, agentID)

	slog.Info("deploying agent", "agent", agentID, "container", containerName, "url", url)

	rec := &registry.Record{
		AgentID:    agentID,
		Name:       cfg.Name,
		Status:     registry.StatusDeploying,
		DeployedAt: time.Now().UTC(),
	}
	if err := c.store.Set(ctx, rec); err != nil {
		return Result{Success: false, Error: "recording deployment: " + err.Error()}
	}

	err := c.runStages(ctx, agentID, cfg, paths, containerName, url, rec)
	if err != nil {
		c.cleanup(ctx, agentID, containerName)
		c.events.Publish(agentID, events.TypeFailed, "", err.Error())
		slog.Error("deploy failed", "agent", agentID, "error", err)
		return Result{Success: false, Error: err.Error()}
	}

	rec.Status = registry.StatusRunning
	rec.URL = url
	rec.Error = ""
	if err := c.store.Set(ctx, rec); err != nil {
		slog.Error("failed to record running status", "agent", agentID, "error", err)
	}

	slog.Info("agent deployed", "agent", agentID, "url", url)
	return Result{Success: true, URL: url}
}

// runStages is the sequential pipeline, each stage gating the next.
func (c *Controller) runStages(ctx context.Context, agentID string, cfg descriptor.AgentConfig, paths descriptor.Paths, containerName, url string, rec *registry.Record) error {
	desc := descriptor.Generate(agentID, cfg, descriptor.Options{
		Image:        c.cfg.ImageTag,
		BuildContext: c.cfg.BuildContext,
		ConfigPath:   paths.Config,
	})

	if _, err := descriptor.WriteConfig(c.cfg.DataDir, agentID, cfg); err != nil {
		return &StageError{Stage: StageConfigWrite, Err: err}
	}
	descPath, err := descriptor.WriteDescriptor(c.cfg.DataDir, agentID, desc)
	if err != nil {
		return &StageError{Stage: StageConfigWrite, Err: err}
	}
	rec.DescriptorPath = descPath

	if err := c.runtime.BuildImage(ctx, runtime.BuildSpec{
		ContextDir: c.cfg.BuildContext,
		Tag:        c.cfg.ImageTag,
	}); err != nil {
		return &StageError{Stage: StageImageBuild, Err: err}
	}

	if err := c.runtime.Up(ctx, desc); err != nil {
		return &StageError{Stage: StageBringUp, Err: err}
	}

	probe := func(ctx context.Context) error {
		return c.agents.Health(ctx, url)
	}
	diag := func(ctx context.Context, lines int) ([]string, error) {
		return c.runtime.TailLogs(ctx, containerName, lines)
	}
	if err := c.monitor.Wait(ctx, agentID, probe, diag); err != nil {
		return &StageError{Stage: StageHealthCheck, Err: err}
	}

	return nil
}

// cleanup tears down a half-started deployment and removes its registry
// entry. Tear-down errors are logged, never propagated, so they cannot
// mask the original failure.
func (c *Controller) cleanup(ctx context.Context, agentID, containerName string) {
	if err := c.runtime.Down(ctx, containerName); err != nil {
		slog.Warn("cleanup tear-down failed", "agent", agentID, "container", containerName, "error", err)
	}
	if err := c.store.Delete(ctx, agentID); err != nil {
		slog.Warn("cleanup registry delete failed", "agent", agentID, "error", err)
	}
}

// Stop tears the agent's container down and records status stopped,
// clearing reachability metadata.
func (c *Controller) Stop(ctx context.Context, agentID string) Result {
	return c.halt(ctx, agentID, registry.StatusStopped, events.TypeStopped)
}

// Pause is semantically identical to Stop but records status paused and
// preserves the URL, so UIs can distinguish intentional pause from a stop.
func (c *Controller) Pause(ctx context.Context, agentID string) Result {
	return c.halt(ctx, agentID, registry.StatusPaused, events.TypePaused)
}

func (c *Controller) halt(ctx context.Context, agentID, status, eventType string) Result {
	l := c.lock(agentID)
	l.Lock()
	defer l.Unlock()

	rec, err := c.store.Get(ctx, agentID)
	if errors.Is(err, registry.ErrNotFound) {
		return Result{Success: false, Error: notFoundMessage}
	}
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	containerName := descriptor.ContainerName(agentID)
	if err := c.runtime.Down(ctx, containerName); err != nil {
		// Best effort: tear-down failures are logged, not thrown.
		slog.Warn("tear-down failed", "agent", agentID, "container", containerName, "error", err)
	}

	rec.Status = status
	if status == registry.StatusStopped {
		rec.URL = ""
	}
	if err := c.store.Set(ctx, rec); err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	c.events.Publish(agentID, eventType, rec.URL, "")
	slog.Info("agent halted", "agent", agentID, "status", status)
	return Result{Success: true}
}

// Delete removes the agent entirely: container, registry entry, and
// persisted files. Idempotent; deleting an unknown agent is a no-op.
func (c *Controller) Delete(ctx context.Context, agentID string) Result {
	l := c.lock(agentID)
	l.Lock()
	defer l.Unlock()

	_, err := c.store.Get(ctx, agentID)
	if errors.Is(err, registry.ErrNotFound) {
		return Result{Success: true}
	}
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	containerName := descriptor.ContainerName(agentID)
	if err := c.runtime.Down(ctx, containerName); err != nil {
		slog.Warn("tear-down failed during delete", "agent", agentID, "error", err)
	}
	if err := c.store.Delete(ctx, agentID); err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	if err := descriptor.RemoveAgentDir(c.cfg.DataDir, agentID); err != nil {
		slog.Warn("failed to remove agent data dir", "agent", agentID, "error", err)
	}

	c.events.Publish(agentID, events.TypeDeleted, "", "")
	slog.Info("agent deleted", "agent", agentID)
	return Result{Success: true}
}

// Status returns the recorded lifecycle status plus a live health
// classification obtained by probing the agent's endpoint on demand.
func (c *Controller) Status(ctx context.Context, agentID string) StatusResult {
	rec, err := c.store.Get(ctx, agentID)
	if errors.Is(err, registry.ErrNotFound) {
		return StatusResult{Success: false, Error: notFoundMessage}
	}
	if err != nil {
		return StatusResult{Success: false, Error: err.Error()}
	}

	res := StatusResult{
		Success: true,
		Status:  rec.Status,
		URL:     rec.URL,
		Error:   rec.Error,
	}

	if rec.URL != "" {
		res.Health = c.classifyHealth(ctx, rec.URL)
	}
	return res
}

// classifyHealth probes the live endpoint: a success status is healthy, a
// non-success HTTP response is unhealthy, anything else is unreachable.
func (c *Controller) classifyHealth(ctx context.Context, url string) string {
	err := c.agents.Health(ctx, url)
	if err == nil {
		return HealthHealthy
	}
	var statusErr *agentclient.StatusError
	if errors.As(err, &statusErr) {
		return HealthUnhealthy
	}
	return HealthUnreachable
}

// Logs returns a bounded tail of the agent's container output.
func (c *Controller) Logs(ctx context.Context, agentID string, lines int) ([]string, error) {
	if _, err := c.store.Get(ctx, agentID); err != nil {
		return nil, err
	}
	return c.runtime.TailLogs(ctx, descriptor.ContainerName(agentID), lines)
}

// Follow returns a live log stream for the agent. The caller must close
// the reader on consumer disconnect to terminate the underlying stream.
func (c *Controller) Follow(ctx context.Context, agentID string) (io.ReadCloser, error) {
	if _, err := c.store.Get(ctx, agentID); err != nil {
		return nil, err
	}
	return c.runtime.FollowLogs(ctx, descriptor.ContainerName(agentID))
}

// Interact forwards a message to the agent's process endpoint and relays
// its structured response.
func (c *Controller) Interact(ctx context.Context, agentID, message string) (*agentclient.ProcessResponse, error) {
	rec, err := c.store.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec.URL == "" || rec.Status != registry.StatusRunning {
		return nil, &ProxyError{AgentID: agentID, Err: errors.New("agent is not running")}
	}

	resp, err := c.agents.Process(ctx, rec.URL, agentclient.ProcessRequest{Message: message})
	if err != nil {
		return nil, &ProxyError{AgentID: agentID, Err: err}
	}
	return resp, nil
}

// List returns all registry records.
func (c *Controller) List(ctx context.Context) ([]*registry.Record, error) {
	return c.store.List(ctx)
}

// Get returns one registry record.
func (c *Controller) Get(ctx context.Context, agentID string) (*registry.Record, error) {
	return c.store.Get(ctx, agentID)
}
