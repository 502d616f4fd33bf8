package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helmcode/agent-fleet/internal/agentclient"
	"github.com/helmcode/agent-fleet/internal/api"
	"github.com/helmcode/agent-fleet/internal/events"
	"github.com/helmcode/agent-fleet/internal/health"
	"github.com/helmcode/agent-fleet/internal/lifecycle"
	"github.com/helmcode/agent-fleet/internal/models"
	"github.com/helmcode/agent-fleet/internal/runtime"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting agent-fleet API")

	// Registry database.
	db, err := models.InitDB(envOr("DATABASE_PATH", "agentfleet.db"))
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	store := models.NewDBStore(db)

	// Container runtime.
	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		slog.Error("failed to initialize docker runtime", "error", err)
		os.Exit(1)
	}

	// Lifecycle event publisher (optional).
	var pub *events.Publisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		pub, err = events.Connect(events.DefaultConfig(natsURL))
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
	}

	ctrl := lifecycle.New(store, rt, health.New(health.Options{}), agentclient.New(10*time.Second), pub, lifecycle.Config{
		DataDir:      envOr("DATA_DIR", "./data"),
		BuildContext: envOr("BUILD_CONTEXT", "."),
		ImageTag:     os.Getenv("AGENT_IMAGE_TAG"),
	})

	srv := api.NewServer(ctrl, []byte(os.Getenv("AUTH_JWT_SECRET")))

	// Start server in background.
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	go func() {
		if err := srv.Listen(listenAddr); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down agent-fleet API")
	if err := srv.Shutdown(); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
