// Package models defines GORM models and the SQLite-backed registry store.
// Persisting the registry lets stopped and paused agents survive an
// orchestrator restart and be started again from their last configuration.
package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/helmcode/agent-fleet/internal/registry"
)

// AgentRecord is the persisted form of a registry record.
type AgentRecord struct {
	AgentID        string    `gorm:"primaryKey;size:128" json:"agent_id"`
	Name           string    `gorm:"size:255" json:"name"`
	Status         string    `gorm:"not null;size:50" json:"status"`
	URL            string    `gorm:"size:255" json:"url"`
	DescriptorPath string    `gorm:"size:512" json:"descriptor_path"`
	DeployedAt     time.Time `json:"deployed_at"`
	Error          string    `gorm:"type:text" json:"error"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DBStore implements registry.Store on a GORM database.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore wraps an initialized database in a registry store.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Get(ctx context.Context, agentID string) (*registry.Record, error) {
	var rec AgentRecord
	err := s.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toRegistry(&rec), nil
}

func (s *DBStore) Set(ctx context.Context, rec *registry.Record) error {
	row := fromRegistry(rec)
	return s.db.WithContext(ctx).Save(row).Error
}

func (s *DBStore) Delete(ctx context.Context, agentID string) error {
	return s.db.WithContext(ctx).Delete(&AgentRecord{}, "agent_id = ?", agentID).Error
}

func (s *DBStore) List(ctx context.Context) ([]*registry.Record, error) {
	var rows []AgentRecord
	if err := s.db.WithContext(ctx).Order("agent_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*registry.Record, 0, len(rows))
	for i := range rows {
		out = append(out, toRegistry(&rows[i]))
	}
	return out, nil
}

func toRegistry(rec *AgentRecord) *registry.Record {
	return &registry.Record{
		AgentID:        rec.AgentID,
		Name:           rec.Name,
		Status:         rec.Status,
		URL:            rec.URL,
		DescriptorPath: rec.DescriptorPath,
		DeployedAt:     rec.DeployedAt,
		Error:          rec.Error,
	}
}

func fromRegistry(rec *registry.Record) *AgentRecord {
	return &AgentRecord{
		AgentID:        rec.AgentID,
		Name:           rec.Name,
		Status:         rec.Status,
		URL:            rec.URL,
		DescriptorPath: rec.DescriptorPath,
		DeployedAt:     rec.DeployedAt,
		Error:          rec.Error,
	}
}
