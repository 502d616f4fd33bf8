// Package runtime defines the container runtime interface and Docker implementation.
package runtime

import (
	"context"
	"io"

	"github.com/helmcode/agent-fleet/internal/descriptor"
)

// BuildSpec holds the inputs for building the shared runtime image.
type BuildSpec struct {
	ContextDir string // directory sent as the build context
	Dockerfile string // relative to ContextDir; "Dockerfile" when empty
	Tag        string
}

// ContainerRuntime is the capability interface the orchestration layer uses
// to drive containers. Keeping it narrow makes the lifecycle controller
// runtime-agnostic and mockable in tests.
type ContainerRuntime interface {
	// BuildImage builds the shared runtime image from the build context.
	BuildImage(ctx context.Context, spec BuildSpec) error

	// Up creates and starts the container described by the descriptor,
	// replacing any stale container with the same name.
	Up(ctx context.Context, desc *descriptor.Descriptor) error

	// Down stops and removes the named container. A container that does
	// not exist is not an error.
	Down(ctx context.Context, containerName string) error

	// TailLogs returns up to lines trailing lines of the container's
	// combined output. Never blocks on a live stream.
	TailLogs(ctx context.Context, containerName string, lines int) ([]string, error)

	// FollowLogs returns a live multiplexed log stream. The caller must
	// close the reader; closing it terminates the underlying stream.
	FollowLogs(ctx context.Context, containerName string) (io.ReadCloser, error)
}
