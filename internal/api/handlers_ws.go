package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/contrib/websocket"

	"github.com/helmcode/agent-fleet/internal/logstream"
	"github.com/helmcode/agent-fleet/internal/registry"
)

// StreamLogs streams an agent's container output over WebSocket, one JSON
// event per line, tagged with its channel (stdout or stderr). When the client
// disconnects the underlying log stream is closed, which terminates the
// container log follow.
func (s *Server) StreamLogs(c *websocket.Conn) {
	agentID := c.Params("id")
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, err := s.ctrl.Follow(ctx, agentID)
	if errors.Is(err, registry.ErrNotFound) {
		writeEvent(c, logstream.NewEvent(logstream.ChannelError, "agent not found"))
		return
	}
	if err != nil {
		slog.Error("failed to open log stream", "agent", agentID, "error", err)
		writeEvent(c, logstream.NewEvent(logstream.ChannelError, "failed to stream logs"))
		return
	}
	defer reader.Close()

	// Listen for client disconnect. Cancelling the context and closing the
	// reader unblocks the demux below.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				cancel()
				reader.Close()
				return
			}
		}
	}()

	writeEvent(c, logstream.NewEvent(logstream.ChannelInfo, "streaming logs for agent "+agentID))

	events := make(chan logstream.Event, 64)
	go logstream.Follow(ctx, reader, events)

	for ev := range events {
		if !writeEvent(c, ev) {
			return
		}
	}
}

func writeEvent(c *websocket.Conn, ev logstream.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return c.WriteMessage(websocket.TextMessage, data) == nil
}
