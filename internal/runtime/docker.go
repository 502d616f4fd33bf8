package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"

	"github.com/helmcode/agent-fleet/internal/descriptor"
	"github.com/helmcode/agent-fleet/internal/logstream"
)

// LabelAgent marks containers managed by this orchestrator.
const LabelAgent = "agentfleet.agent"

// DockerRuntime implements ContainerRuntime using the Docker Engine API.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a DockerRuntime using the default Docker client from env.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// isAlreadyExistsErr checks if a Docker API error indicates the resource already exists.
func isAlreadyExistsErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already in use")
}

// BuildImage builds the shared runtime image from the build context directory.
// The build output stream is drained and scanned for daemon-reported errors.
func (d *DockerRuntime) BuildImage(ctx context.Context, spec BuildSpec) error {
	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	slog.Info("building runtime image", "tag", spec.Tag, "context", spec.ContextDir)

	buildCtx, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("tarring build context %s: %w", spec.ContextDir, err)
	}
	defer buildCtx.Close()

	resp, err := d.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("building image %s: %w", spec.Tag, err)
	}
	defer resp.Body.Close()

	// The daemon streams JSON messages; a failed step arrives as an
	// error message in-stream, not as a transport error.
	dec := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("building image %s: %s", spec.Tag, msg.Error)
		}
	}

	slog.Info("runtime image built", "tag", spec.Tag)
	return nil
}

// Up creates and starts the container described by the descriptor. Any stale
// container with the same name from a previous failed deploy is replaced.
func (d *DockerRuntime) Up(ctx context.Context, desc *descriptor.Descriptor) error {
	name, svc := desc.Service()
	if name == "" {
		return fmt.Errorf("descriptor has no service")
	}

	slog.Info("bringing up agent container", "container", svc.ContainerName, "image", svc.Image)

	if err := d.ensureNetworks(ctx, desc); err != nil {
		return err
	}

	_ = d.client.ContainerRemove(ctx, svc.ContainerName, container.RemoveOptions{Force: true})

	exposed, bindings, err := nat.ParsePortSpecs(svc.Ports)
	if err != nil {
		return fmt.Errorf("parsing port spec %v: %w", svc.Ports, err)
	}

	health, err := healthConfig(svc.Healthcheck)
	if err != nil {
		return fmt.Errorf("parsing healthcheck: %w", err)
	}

	endpoints := make(map[string]*network.EndpointSettings, len(svc.Networks))
	for _, n := range svc.Networks {
		endpoints[n] = &network.EndpointSettings{}
	}

	resp, err := d.client.ContainerCreate(ctx,
		&container.Config{
			Image:        svc.Image,
			Env:          svc.Environment,
			ExposedPorts: exposed,
			Healthcheck:  health,
			Labels: map[string]string{
				LabelAgent: svc.ContainerName,
			},
		},
		&container.HostConfig{
			Binds:        svc.Volumes,
			PortBindings: bindings,
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyMode(svc.Restart),
			},
		},
		&network.NetworkingConfig{
			EndpointsConfig: endpoints,
		},
		nil,
		svc.ContainerName,
	)
	if err != nil {
		return fmt.Errorf("creating container %s: %w", svc.ContainerName, err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", svc.ContainerName, err)
	}

	slog.Info("agent container started", "id", resp.ID[:12], "container", svc.ContainerName)
	return nil
}

// ensureNetworks creates the descriptor's networks if absent (idempotent).
func (d *DockerRuntime) ensureNetworks(ctx context.Context, desc *descriptor.Descriptor) error {
	for name, n := range desc.Networks {
		if n.External {
			continue
		}
		_, err := d.client.NetworkCreate(ctx, name, network.CreateOptions{
			Labels: map[string]string{LabelAgent: ""},
		})
		if err != nil && !isAlreadyExistsErr(err) {
			return fmt.Errorf("creating network %s: %w", name, err)
		}
	}
	return nil
}

// Down stops and removes a container by name. Absence is a normal outcome.
func (d *DockerRuntime) Down(ctx context.Context, containerName string) error {
	slog.Info("tearing down agent container", "container", containerName)

	timeout := 30
	if err := d.client.ContainerStop(ctx, containerName, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		slog.Warn("failed to stop container, forcing removal", "container", containerName, "error", err)
	}

	if err := d.client.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("removing container %s: %w", containerName, err)
	}
	return nil
}

// TailLogs fetches the last lines of a container's combined output.
func (d *DockerRuntime) TailLogs(ctx context.Context, containerName string, lines int) ([]string, error) {
	reader, err := d.client.ContainerLogs(ctx, containerName, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching logs for %s: %w", containerName, err)
	}
	defer reader.Close()

	out, err := logstream.Combined(reader)
	if err != nil {
		return nil, fmt.Errorf("reading logs for %s: %w", containerName, err)
	}
	return out, nil
}

// FollowLogs returns a live log stream for a container.
func (d *DockerRuntime) FollowLogs(ctx context.Context, containerName string) (io.ReadCloser, error) {
	reader, err := d.client.ContainerLogs(ctx, containerName, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("following logs for %s: %w", containerName, err)
	}
	return reader, nil
}

// healthConfig converts the descriptor's health-probe block into the engine's
// native form. Durations use compose notation ("10s", "1m30s").
func healthConfig(h descriptor.Healthcheck) (*container.HealthConfig, error) {
	if len(h.Test) == 0 {
		return nil, nil
	}

	parse := func(field, s string) (time.Duration, error) {
		if s == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", field, s, err)
		}
		return d, nil
	}

	interval, err := parse("interval", h.Interval)
	if err != nil {
		return nil, err
	}
	timeout, err := parse("timeout", h.Timeout)
	if err != nil {
		return nil, err
	}
	startPeriod, err := parse("start_period", h.StartPeriod)
	if err != nil {
		return nil, err
	}

	return &container.HealthConfig{
		Test:        h.Test,
		Interval:    interval,
		Timeout:     timeout,
		Retries:     h.Retries,
		StartPeriod: startPeriod,
	}, nil
}
