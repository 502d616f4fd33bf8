// Package events publishes lifecycle transitions to NATS so external
// consumers (UIs, audit pipelines) can follow fleet activity. The broker is
// optional: a nil Publisher silently drops events.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event types emitted by the lifecycle controller.
const (
	TypeDeployed = "deployed"
	TypeStarted  = "started"
	TypeStopped  = "stopped"
	TypePaused   = "paused"
	TypeDeleted  = "deleted"
	TypeFailed   = "failed"
)

// Event is one lifecycle transition.
type Event struct {
	EventID   string    `json:"event_id"`
	AgentID   string    `json:"agent_id"`
	Type      string    `json:"type"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	Name          string // connection name for monitoring
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		Name:          "agent-fleet-api",
		MaxReconnects: -1, // unlimited reconnects
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher emits lifecycle events on agents.<id>.lifecycle subjects.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection for publishing.
func Connect(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", config.URL, err)
	}
	return &Publisher{conn: nc}, nil
}

// Publish emits one lifecycle event. Best effort: publish errors are
// logged, never propagated, since event delivery must not affect lifecycle
// outcomes. Safe to call on a nil Publisher.
func (p *Publisher) Publish(agentID, eventType, url, errMsg string) {
	if p == nil || p.conn == nil {
		return
	}

	ev := Event{
		EventID:   uuid.New().String(),
		AgentID:   agentID,
		Type:      eventType,
		URL:       url,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshaling lifecycle event", "error", err)
		return
	}

	subject := Subject(agentID)
	if err := p.conn.Publish(subject, data); err != nil {
		slog.Warn("publishing lifecycle event failed", "subject", subject, "error", err)
	}
}

// Close drains and closes the connection. Nil-safe.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// Subject returns the NATS subject for an agent's lifecycle events.
// Agent ids are sanitized elsewhere; dots would split subject tokens, so
// they are replaced defensively here.
func Subject(agentID string) string {
	safe := make([]rune, 0, len(agentID))
	for _, r := range agentID {
		switch r {
		case '.', '*', '>', ' ':
			safe = append(safe, '_')
		default:
			safe = append(safe, r)
		}
	}
	return fmt.Sprintf("agents.%s.lifecycle", string(safe))
}
