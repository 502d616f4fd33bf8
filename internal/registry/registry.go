// Package registry defines the agent deployment registry: the table mapping
// agent ids to their current deployment record, behind an injectable store
// so tests can substitute an in-memory fake.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Lifecycle statuses of a deployment record.
const (
	StatusDeploying = "deploying"
	StatusRunning   = "running"
	StatusStopped   = "stopped"
	StatusPaused    = "paused"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no record exists for an agent id. Absence
// means "not running", never "unknown".
var ErrNotFound = errors.New("agent not found")

// Record is the deployment record kept per active agent.
type Record struct {
	AgentID        string    `json:"agent_id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	URL            string    `json:"url,omitempty"`
	DescriptorPath string    `json:"descriptor_path,omitempty"`
	DeployedAt     time.Time `json:"deployed_at"`
	Error          string    `json:"error,omitempty"`
}

// Store is the registry abstraction. All mutations are whole-record,
// last-writer-wins; callers needing mutual exclusion per agent id hold
// their own lock (see lifecycle.Controller).
type Store interface {
	Get(ctx context.Context, agentID string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, agentID string) error
	List(ctx context.Context) ([]*Record, error)
}

// Memory is a Store backed by a mutex-guarded map. Used in tests and by
// the test server; production wiring uses the SQLite-backed store so
// records survive orchestrator restarts.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Get(_ context.Context, agentID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) Set(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.AgentID] = *rec
	return nil
}

func (m *Memory) Delete(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, agentID)
	return nil
}

func (m *Memory) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}
