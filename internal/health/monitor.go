// Package health implements the bounded post-deploy health polling loop.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
)

// Defaults for the polling loop. Agent startup time is roughly bounded and
// predictable, so the loop uses a fixed interval with no backoff growth.
const (
	DefaultMaxAttempts      = 30
	DefaultInterval         = 2 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultDiagnosticsEvery = 5
	DefaultDiagnosticsLines = 20
)

// Probe issues a single bounded health check. Nil means healthy.
type Probe func(ctx context.Context) error

// Diagnostics fetches a short tail of the agent's process output for
// operator visibility. Failures here never abort the health loop.
type Diagnostics func(ctx context.Context, lines int) ([]string, error)

// Options tune a Monitor. Zero values take the package defaults.
type Options struct {
	MaxAttempts      uint
	Interval         time.Duration
	ProbeTimeout     time.Duration
	DiagnosticsEvery uint
	DiagnosticsLines int
}

// Monitor polls an agent's health endpoint after bring-up, sequentially,
// one probe at a time, until success or the attempt budget is exhausted.
type Monitor struct {
	opts Options
}

// New creates a Monitor, filling unset options with defaults.
func New(opts Options) *Monitor {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.DiagnosticsEvery == 0 {
		opts.DiagnosticsEvery = DefaultDiagnosticsEvery
	}
	if opts.DiagnosticsLines == 0 {
		opts.DiagnosticsLines = DefaultDiagnosticsLines
	}
	return &Monitor{opts: opts}
}

// Wait runs the polling loop. It returns nil as soon as a probe succeeds,
// or the last probe error (wrapped) after exactly MaxAttempts failures.
// Every DiagnosticsEvery-th failed attempt additionally pulls a diagnostic
// log tail; diag may be nil to disable that side channel.
func (m *Monitor) Wait(ctx context.Context, agentID string, probe Probe, diag Diagnostics) error {
	attempt := uint(0)

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(m.opts.MaxAttempts),
		retry.Delay(m.opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			failed := n + 1
			slog.Debug("health probe failed", "agent", agentID, "attempt", failed, "error", err)
			if diag != nil && failed%m.opts.DiagnosticsEvery == 0 {
				m.pullDiagnostics(ctx, agentID, failed, diag)
			}
		}),
	)

	err := r.Do(func() error {
		attempt++
		probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
		defer cancel()
		return probe(probeCtx)
	})
	if err != nil {
		// The retry callback fires between attempts, never after the last
		// one, so a final failure landing on the diagnostics cadence still
		// gets its log pull here.
		if diag != nil && attempt%m.opts.DiagnosticsEvery == 0 {
			m.pullDiagnostics(ctx, agentID, attempt, diag)
		}
		return fmt.Errorf("agent %s not healthy after %d attempts: %w", agentID, attempt, err)
	}

	slog.Info("agent healthy", "agent", agentID, "attempts", attempt)
	return nil
}

// pullDiagnostics logs a short tail of the agent's output. Best effort.
func (m *Monitor) pullDiagnostics(ctx context.Context, agentID string, failed uint, diag Diagnostics) {
	lines, err := diag(ctx, m.opts.DiagnosticsLines)
	if err != nil {
		slog.Warn("failed to pull diagnostic logs", "agent", agentID, "error", err)
		return
	}
	slog.Info("agent still unhealthy, recent output",
		"agent", agentID,
		"failed_attempts", failed,
		"log_lines", len(lines),
	)
	for _, line := range lines {
		slog.Info("agent log", "agent", agentID, "line", line)
	}
}
