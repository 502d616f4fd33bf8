// Package descriptor generates compose-style deployment descriptors for agent
// containers and persists them, together with the agent's runtime configuration,
// to the orchestrator's data directory.
package descriptor

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Shared naming and port-derivation constants.
const (
	// BasePort and PortRange bound the host ports published for agents.
	// The same agent id always maps to the same port; two different ids
	// colliding on one port is a known limitation of hash-based assignment.
	BasePort  = 18000
	PortRange = 1000

	// ContainerPort is the fixed port the agent process listens on inside
	// its container (AGENT_PORT for the runtime server).
	ContainerPort = 8000

	ContainerPrefix = "agent-"
	NetworkName     = "agent-fleet"
	DefaultImage    = "agent-fleet-runtime:latest"

	// ConfigMountPath is where the agent's config file is mounted read-only
	// inside the container.
	ConfigMountPath = "/app/config.yaml"
)

// AgentConfig is the declarative runtime configuration for a single agent.
// It is what the caller supplies on deploy and what gets mounted into the
// container for the agent process to load at startup.
type AgentConfig struct {
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Modules      []string          `json:"modules,omitempty" yaml:"modules,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Descriptor is the declarative specification for building and running one
// agent container. It serializes to a human-readable nested YAML document.
type Descriptor struct {
	Services map[string]Service `yaml:"services"`
	Networks map[string]Network `yaml:"networks"`
}

// Service describes the single agent container of a descriptor.
type Service struct {
	ContainerName string      `yaml:"container_name"`
	Image         string      `yaml:"image"`
	Build         Build       `yaml:"build"`
	Environment   []string    `yaml:"environment,omitempty"`
	Volumes       []string    `yaml:"volumes,omitempty"`
	Ports         []string    `yaml:"ports"`
	Healthcheck   Healthcheck `yaml:"healthcheck"`
	Restart       string      `yaml:"restart"`
	Networks      []string    `yaml:"networks"`
}

// Build references the build context for the shared runtime image.
type Build struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// Healthcheck is the health-probe block of a service.
type Healthcheck struct {
	Test        []string `yaml:"test"`
	Interval    string   `yaml:"interval"`
	Timeout     string   `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	StartPeriod string   `yaml:"start_period"`
}

// Network is a network attachment entry.
type Network struct {
	External bool `yaml:"external,omitempty"`
}

// Options carries the non-config inputs to Generate.
type Options struct {
	Image        string // runtime image tag; DefaultImage when empty
	BuildContext string // directory holding the runtime image's Dockerfile
	ConfigPath   string // host path of the agent's config file, mounted read-only
}

// DerivePort maps an agent id to a stable host port in
// [BasePort, BasePort+PortRange). The hash covers only the id's trailing
// bytes so that ids sharing a long common prefix still spread out.
func DerivePort(agentID string) int {
	tail := agentID
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	h := fnv.New32a()
	h.Write([]byte(tail))
	return BasePort + int(h.Sum32()%PortRange)
}

// ContainerName returns the container name for an agent: fixed prefix + id.
func ContainerName(agentID string) string {
	return ContainerPrefix + sanitizeName(agentID)
}

// AgentURL returns the base address an agent answers on once running.
func AgentURL(agentID string) string {
	return fmt.Sprintf("http://localhost:%d", DerivePort(agentID))
}

// Generate produces a complete Descriptor for an agent. It is pure and
// deterministic: no I/O, and a missing name defaults to the agent id.
func Generate(agentID string, cfg AgentConfig, opts Options) *Descriptor {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = agentID
	}

	img := opts.Image
	if img == "" {
		img = DefaultImage
	}

	svcName := ContainerName(agentID)
	hostPort := DerivePort(agentID)

	env := []string{
		"AGENT_ID=" + agentID,
		"AGENT_NAME=" + name,
		"AGENT_PORT=" + strconv.Itoa(ContainerPort),
		"AGENT_CONFIG_PATH=" + ConfigMountPath,
	}
	for k, v := range cfg.Env {
		if k != "" && v != "" {
			env = append(env, k+"="+v)
		}
	}

	var volumes []string
	if opts.ConfigPath != "" {
		volumes = append(volumes, opts.ConfigPath+":"+ConfigMountPath+":ro")
	}

	return &Descriptor{
		Services: map[string]Service{
			svcName: {
				ContainerName: svcName,
				Image:         img,
				Build: Build{
					Context: opts.BuildContext,
				},
				Environment: env,
				Volumes:     volumes,
				Ports: []string{
					fmt.Sprintf("%d:%d", hostPort, ContainerPort),
				},
				Healthcheck: Healthcheck{
					Test:        []string{"CMD", "curl", "-fsS", fmt.Sprintf("http://localhost:%d/health", ContainerPort)},
					Interval:    "10s",
					Timeout:     "5s",
					Retries:     3,
					StartPeriod: "30s",
				},
				Restart:  "unless-stopped",
				Networks: []string{NetworkName},
			},
		},
		Networks: map[string]Network{
			NetworkName: {},
		},
	}
}

// Service returns the descriptor's single service and its name. Descriptors
// generated by this package always contain exactly one service.
func (d *Descriptor) Service() (string, Service) {
	for name, svc := range d.Services {
		return name, svc
	}
	return "", Service{}
}

// HostPort returns the published host port of the descriptor's service,
// or 0 if the port entry is missing or malformed.
func (d *Descriptor) HostPort() int {
	_, svc := d.Service()
	if len(svc.Ports) == 0 {
		return 0
	}
	parts := strings.SplitN(svc.Ports[0], ":", 2)
	port, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	return port
}

// sanitizeName converts an id into a Docker-safe slug: lowercase, [a-z0-9_-],
// no consecutive or trailing hyphens, at most 62 characters. Lowercasing maps
// mixed-case inputs onto their lowercase twins, so the API accepts lowercase
// ids only.
func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 62 {
		s = s[:62]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "agent"
	}
	return s
}
