package logstream

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
)

// muxFrames encodes stdout/stderr payloads in the Docker multiplexed format.
func muxFrames(t *testing.T, stdout, stderr string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if stdout != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout)); err != nil {
			t.Fatalf("writing stdout frame: %v", err)
		}
	}
	if stderr != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr)); err != nil {
			t.Fatalf("writing stderr frame: %v", err)
		}
	}
	return buf.Bytes()
}

func TestCombined(t *testing.T) {
	raw := muxFrames(t, "line one\nline two\n", "oops\n")

	lines, err := Combined(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Combined: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %v", len(lines), lines)
	}
	if lines[0] != "line one" || lines[1] != "line two" || lines[2] != "oops" {
		t.Errorf("lines = %v", lines)
	}
}

func TestCombinedEmpty(t *testing.T) {
	lines, err := Combined(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Combined: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("got %v, want no lines", lines)
	}
}

func TestFollowTagsChannels(t *testing.T) {
	raw := muxFrames(t, "out line\n", "err line\n")

	out := make(chan Event, 16)
	go Follow(context.Background(), bytes.NewReader(raw), out)

	got := map[Channel]string{}
	for ev := range out {
		got[ev.Channel] = ev.Message
	}

	if got[ChannelStdout] != "out line" {
		t.Errorf("stdout event = %q", got[ChannelStdout])
	}
	if got[ChannelStderr] != "err line" {
		t.Errorf("stderr event = %q", got[ChannelStderr])
	}
}

func TestFollowClosesOnReaderEnd(t *testing.T) {
	out := make(chan Event)
	done := make(chan struct{})
	go func() {
		Follow(context.Background(), bytes.NewReader(nil), out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after reader EOF")
	}
	if _, open := <-out; open {
		t.Error("out channel still open after Follow returned")
	}
}

func TestFollowStopsOnCancel(t *testing.T) {
	// A reader that never ends: Follow must still return once the context
	// is canceled and the consumer stops draining.
	pr, pw := io.Pipe()
	defer pw.Close()

	// Keep the stream busy.
	go func() {
		w := stdcopy.NewStdWriter(pw, stdcopy.Stdout)
		for i := 0; ; i++ {
			if _, err := w.Write([]byte("spam\n")); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event)
	done := make(chan struct{})
	go func() {
		Follow(ctx, pr, out)
		close(done)
	}()

	// Consume one event to prove the stream is live, then disconnect.
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("no event received from live stream")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
