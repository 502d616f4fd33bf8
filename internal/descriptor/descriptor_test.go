package descriptor

import (
	"fmt"
	"strings"
	"testing"
)

func TestDerivePortStable(t *testing.T) {
	ids := []string{"a1", "agent-7f3b", "x", strings.Repeat("z", 100)}

	for _, id := range ids {
		first := DerivePort(id)
		for i := 0; i < 10; i++ {
			if got := DerivePort(id); got != first {
				t.Fatalf("DerivePort(%q) not stable: %d then %d", id, first, got)
			}
		}
		if first < BasePort || first >= BasePort+PortRange {
			t.Errorf("DerivePort(%q) = %d, outside [%d, %d)", id, first, BasePort, BasePort+PortRange)
		}
	}
}

func TestDerivePortUsesTrailingBytes(t *testing.T) {
	// Ids differing only in the trailing bytes must be able to map to
	// different ports; a long shared prefix must not pin the result.
	seen := map[int]bool{}
	for i := 0; i < 50; i++ {
		seen[DerivePort(fmt.Sprintf("%s-%03d", strings.Repeat("p", 64), i))] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected trailing-byte variation to spread ports, got %d distinct", len(seen))
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a1", "a1"},
		{"My Agent", "my-agent"},
		{"weird!!chars##", "weirdchars"},
		{"--lead-trail--", "lead-trail"},
		{"", "agent"},
		{strings.Repeat("a", 80), strings.Repeat("a", 62)},
	}

	for _, tt := range tests {
		if got := sanitizeName(tt.input); got != tt.expected {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGenerate(t *testing.T) {
	cfg := AgentConfig{
		Name:    "Research Agent",
		Modules: []string{"news"},
		Env:     map[string]string{"NEWS_API_KEY": "k"},
	}
	d := Generate("a1", cfg, Options{
		BuildContext: "./runtime",
		ConfigPath:   "/data/agents/a1/config.yaml",
	})

	name, svc := d.Service()
	if name != "agent-a1" {
		t.Fatalf("service name = %q, want %q", name, "agent-a1")
	}
	if svc.ContainerName != "agent-a1" {
		t.Errorf("container name = %q, want %q", svc.ContainerName, "agent-a1")
	}
	if svc.Image != DefaultImage {
		t.Errorf("image = %q, want default %q", svc.Image, DefaultImage)
	}
	if svc.Build.Context != "./runtime" {
		t.Errorf("build context = %q", svc.Build.Context)
	}
	if svc.Restart != "unless-stopped" {
		t.Errorf("restart = %q", svc.Restart)
	}

	wantPort := fmt.Sprintf("%d:%d", DerivePort("a1"), ContainerPort)
	if len(svc.Ports) != 1 || svc.Ports[0] != wantPort {
		t.Errorf("ports = %v, want [%s]", svc.Ports, wantPort)
	}
	if d.HostPort() != DerivePort("a1") {
		t.Errorf("HostPort() = %d, want %d", d.HostPort(), DerivePort("a1"))
	}

	if len(svc.Volumes) != 1 || svc.Volumes[0] != "/data/agents/a1/config.yaml:"+ConfigMountPath+":ro" {
		t.Errorf("volumes = %v", svc.Volumes)
	}

	if svc.Healthcheck.Retries != 3 || svc.Healthcheck.StartPeriod != "30s" {
		t.Errorf("healthcheck = %+v", svc.Healthcheck)
	}

	var hasName, hasPort bool
	for _, e := range svc.Environment {
		if e == "AGENT_NAME=Research Agent" {
			hasName = true
		}
		if e == "AGENT_PORT=8000" {
			hasPort = true
		}
	}
	if !hasName || !hasPort {
		t.Errorf("environment missing expected entries: %v", svc.Environment)
	}

	if _, ok := d.Networks[NetworkName]; !ok {
		t.Errorf("networks = %v, want %q attachment", d.Networks, NetworkName)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := AgentConfig{Name: "a"}
	opts := Options{BuildContext: "./runtime"}

	a := Generate("agent-42", cfg, opts)
	b := Generate("agent-42", cfg, opts)

	if a.HostPort() != b.HostPort() {
		t.Errorf("port differs across calls: %d vs %d", a.HostPort(), b.HostPort())
	}
	an, _ := a.Service()
	bn, _ := b.Service()
	if an != bn {
		t.Errorf("service name differs: %q vs %q", an, bn)
	}
}

func TestGenerateDefaultsMissingName(t *testing.T) {
	d := Generate("a1", AgentConfig{}, Options{})
	_, svc := d.Service()

	var got string
	for _, e := range svc.Environment {
		if strings.HasPrefix(e, "AGENT_NAME=") {
			got = strings.TrimPrefix(e, "AGENT_NAME=")
		}
	}
	if got != "a1" {
		t.Errorf("AGENT_NAME = %q, want fallback to agent id", got)
	}
}
