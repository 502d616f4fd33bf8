package descriptor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File names inside an agent's data directory.
const (
	configFileName     = "config.yaml"
	descriptorFileName = "deploy.yaml"
)

// Paths holds the on-disk locations for one agent's persisted files.
type Paths struct {
	Dir        string
	Config     string
	Descriptor string
}

// AgentPaths computes the per-agent paths under dataDir without touching disk.
func AgentPaths(dataDir, agentID string) Paths {
	dir := filepath.Join(dataDir, "agents", sanitizeName(agentID))
	return Paths{
		Dir:        dir,
		Config:     filepath.Join(dir, configFileName),
		Descriptor: filepath.Join(dir, descriptorFileName),
	}
}

// WriteConfig persists the agent's runtime configuration, creating the agent
// directory if absent. A stale directory occupying the config file's path
// (left over from an interrupted earlier deploy) is removed before writing.
// The write overwrites the whole file; there is no merge.
func WriteConfig(dataDir, agentID string, cfg AgentConfig) (string, error) {
	p := AgentPaths(dataDir, agentID)

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating agent dir %s: %w", p.Dir, err)
	}

	// Self-heal: a directory at the config path makes os.WriteFile fail with
	// a confusing error, so detect and remove it explicitly.
	if info, err := os.Stat(p.Config); err == nil && info.IsDir() {
		slog.Warn("removing stale directory at config path", "path", p.Config, "agent", agentID)
		if err := os.RemoveAll(p.Config); err != nil {
			return "", fmt.Errorf("removing stale directory %s: %w", p.Config, err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling agent config: %w", err)
	}
	if err := os.WriteFile(p.Config, data, 0o644); err != nil {
		return "", fmt.Errorf("writing agent config %s: %w", p.Config, err)
	}
	return p.Config, nil
}

// WriteDescriptor serializes the descriptor to its on-disk YAML form.
// Overwritten on every deploy/start; not versioned.
func WriteDescriptor(dataDir, agentID string, d *Descriptor) (string, error) {
	p := AgentPaths(dataDir, agentID)

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating agent dir %s: %w", p.Dir, err)
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshaling descriptor: %w", err)
	}
	if err := os.WriteFile(p.Descriptor, data, 0o644); err != nil {
		return "", fmt.Errorf("writing descriptor %s: %w", p.Descriptor, err)
	}
	return p.Descriptor, nil
}

// LoadConfig reads back a previously written agent configuration. Used by
// start when the caller supplies no config.
func LoadConfig(dataDir, agentID string) (*AgentConfig, error) {
	p := AgentPaths(dataDir, agentID)

	data, err := os.ReadFile(p.Config)
	if err != nil {
		return nil, fmt.Errorf("reading agent config %s: %w", p.Config, err)
	}
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config %s: %w", p.Config, err)
	}
	return &cfg, nil
}

// Load reads a serialized descriptor from disk.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	return &d, nil
}

// RemoveAgentDir deletes an agent's data directory. Missing dirs are fine.
func RemoveAgentDir(dataDir, agentID string) error {
	return os.RemoveAll(AgentPaths(dataDir, agentID).Dir)
}
