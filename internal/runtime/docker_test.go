package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/helmcode/agent-fleet/internal/descriptor"
)

func TestHealthConfig(t *testing.T) {
	h := descriptor.Healthcheck{
		Test:        []string{"CMD", "curl", "-fsS", "http://localhost:8000/health"},
		Interval:    "10s",
		Timeout:     "5s",
		Retries:     3,
		StartPeriod: "30s",
	}

	got, err := healthConfig(h)
	if err != nil {
		t.Fatalf("healthConfig: %v", err)
	}
	if got.Interval != 10*time.Second || got.Timeout != 5*time.Second || got.StartPeriod != 30*time.Second {
		t.Errorf("durations = %v/%v/%v", got.Interval, got.Timeout, got.StartPeriod)
	}
	if got.Retries != 3 {
		t.Errorf("retries = %d", got.Retries)
	}
	if len(got.Test) != 4 || got.Test[0] != "CMD" {
		t.Errorf("test = %v", got.Test)
	}
}

func TestHealthConfigEmpty(t *testing.T) {
	got, err := healthConfig(descriptor.Healthcheck{})
	if err != nil {
		t.Fatalf("healthConfig: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil health config for empty block, got %+v", got)
	}
}

func TestHealthConfigBadDuration(t *testing.T) {
	_, err := healthConfig(descriptor.Healthcheck{
		Test:     []string{"CMD", "true"},
		Interval: "ten seconds",
	})
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestIsAlreadyExistsErr(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("network with name agent-fleet already exists"), true},
		{errors.New("container name already in use"), true},
		{errors.New("no such container"), false},
	}

	for _, tt := range tests {
		if got := isAlreadyExistsErr(tt.err); got != tt.expected {
			t.Errorf("isAlreadyExistsErr(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}
