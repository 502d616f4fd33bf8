// Package main provides a test server with mock runtime for integration
// testing. It uses an in-memory registry and a mock container runtime that
// returns successful responses for all operations without requiring a real
// Docker daemon.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/helmcode/agent-fleet/internal/agentclient"
	"github.com/helmcode/agent-fleet/internal/api"
	"github.com/helmcode/agent-fleet/internal/descriptor"
	"github.com/helmcode/agent-fleet/internal/health"
	"github.com/helmcode/agent-fleet/internal/lifecycle"
	"github.com/helmcode/agent-fleet/internal/registry"
	"github.com/helmcode/agent-fleet/internal/runtime"
)

// mockRuntime implements runtime.ContainerRuntime for integration testing.
type mockRuntime struct{}

func (m *mockRuntime) BuildImage(_ context.Context, _ runtime.BuildSpec) error { return nil }

func (m *mockRuntime) Up(_ context.Context, _ *descriptor.Descriptor) error { return nil }

func (m *mockRuntime) Down(_ context.Context, _ string) error { return nil }

func (m *mockRuntime) TailLogs(_ context.Context, _ string, _ int) ([]string, error) {
	return []string{"mock log output"}, nil
}

func (m *mockRuntime) FollowLogs(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("mock log output\n")), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting test server with mock runtime")

	// Health checks against real derived ports would never succeed here, so
	// the monitor is configured to give up quickly.
	monitor := health.New(health.Options{
		MaxAttempts: 1,
		Interval:    time.Millisecond,
	})

	dataDir, err := os.MkdirTemp("", "agent-fleet-test")
	if err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dataDir)

	ctrl := lifecycle.New(registry.NewMemory(), &mockRuntime{}, monitor, agentclient.New(time.Second), nil, lifecycle.Config{
		DataDir:      dataDir,
		BuildContext: ".",
	})

	srv := api.NewServer(ctrl, nil)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":3333"
	}

	go func() {
		if err := srv.Listen(listenAddr); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down test server")
	if err := srv.Shutdown(); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
