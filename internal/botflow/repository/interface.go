package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TimeoutConfig is the per-flow bot handoff policy: how long a bot may hold a
// conversation and where the conversation goes when that time runs out.
type TimeoutConfig struct {
	FlowID          string
	TimeoutMinutes  int
	FallbackQueueID uuid.UUID
	UpdatedAt       time.Time
}

// Repository stores bot-flow timeout configuration.
type Repository interface {
	// Get returns the config for a flow. apperr.NotFound when none exists.
	Get(ctx context.Context, flowID string) (TimeoutConfig, error)
	// GetAll returns every configured flow, keyed by flow id. The sweeper
	// reloads this on each pass so edits apply without a restart.
	GetAll(ctx context.Context) (map[string]TimeoutConfig, error)
	// Save inserts or replaces a flow's config.
	Save(ctx context.Context, config TimeoutConfig) (TimeoutConfig, error)
	// Delete removes a flow's config. Flows without config are never
	// escalated by the sweeper.
	Delete(ctx context.Context, flowID string) error
}
