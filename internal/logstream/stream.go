// Package logstream turns the Docker multiplexed log wire format into
// channel-tagged line events for tailing and follow-mode streaming.
package logstream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
)

// Channel identifies the origin of a log event.
type Channel string

const (
	ChannelStdout Channel = "stdout"
	ChannelStderr Channel = "stderr"
	ChannelInfo   Channel = "info"
	ChannelError  Channel = "error"
)

// Event is one discrete push event delivered to a follow-mode consumer.
type Event struct {
	Channel Channel   `json:"channel"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(ch Channel, msg string) Event {
	return Event{Channel: ch, Message: msg, Time: time.Now().UTC()}
}

// Follow demultiplexes the raw log reader into per-line events on out,
// tagged stdout or stderr, until the reader is exhausted or ctx is
// canceled. It closes out before returning, so consumers can range over
// the channel. The caller owns r and must close it to release the
// underlying log stream.
func Follow(ctx context.Context, r io.Reader, out chan<- Event) {
	defer close(out)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderrW, r)
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(ctx, &wg, stdoutR, ChannelStdout, out)
	go scanLines(ctx, &wg, stderrR, ChannelStderr, out)
	wg.Wait()
}

// scanLines reads lines from one demuxed pipe and forwards them as events.
func scanLines(ctx context.Context, wg *sync.WaitGroup, r *io.PipeReader, ch Channel, out chan<- Event) {
	defer wg.Done()
	defer r.CloseWithError(ctx.Err())

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case out <- NewEvent(ch, scanner.Text()):
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Debug("log scan ended", "channel", ch, "error", err)
	}
}

// Combined demultiplexes a finite log payload into ordered lines, stdout
// and stderr interleaved in arrival order. Used for the bounded tail.
func Combined(r io.Reader) ([]string, error) {
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, r); err != nil {
		return nil, err
	}
	return splitLines(buf.String()), nil
}

// splitLines splits on newlines and drops a trailing empty entry.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}
