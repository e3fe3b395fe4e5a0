package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatdesk_backend/platform/apperr"
)

type postgresRepository struct {
	db *pgxpool.Pool
}

// New creates a PostgreSQL-backed bot-flow config repository.
func New(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

var _ Repository = (*postgresRepository)(nil)

func (r *postgresRepository) Get(ctx context.Context, flowID string) (TimeoutConfig, error) {
	query := `
		SELECT flow_id, timeout_minutes, fallback_queue_id, updated_at
		FROM bot_flow_timeouts
		WHERE flow_id = $1`

	var config TimeoutConfig
	err := r.db.QueryRow(ctx, query, flowID).Scan(
		&config.FlowID, &config.TimeoutMinutes, &config.FallbackQueueID, &config.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TimeoutConfig{}, apperr.NotFound("bot flow config not found")
		}
		return TimeoutConfig{}, fmt.Errorf("get bot flow config: %w", err)
	}
	return config, nil
}

func (r *postgresRepository) GetAll(ctx context.Context) (map[string]TimeoutConfig, error) {
	query := `
		SELECT flow_id, timeout_minutes, fallback_queue_id, updated_at
		FROM bot_flow_timeouts`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list bot flow configs: %w", err)
	}
	defer rows.Close()

	configs := make(map[string]TimeoutConfig)
	for rows.Next() {
		var config TimeoutConfig
		if err := rows.Scan(&config.FlowID, &config.TimeoutMinutes,
			&config.FallbackQueueID, &config.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bot flow config: %w", err)
		}
		configs[config.FlowID] = config
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot flow configs: %w", err)
	}
	return configs, nil
}

func (r *postgresRepository) Save(ctx context.Context, config TimeoutConfig) (TimeoutConfig, error) {
	query := `
		INSERT INTO bot_flow_timeouts (flow_id, timeout_minutes, fallback_queue_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (flow_id) DO UPDATE SET
			timeout_minutes = EXCLUDED.timeout_minutes,
			fallback_queue_id = EXCLUDED.fallback_queue_id,
			updated_at = now()
		RETURNING flow_id, timeout_minutes, fallback_queue_id, updated_at`

	var saved TimeoutConfig
	err := r.db.QueryRow(ctx, query, config.FlowID, config.TimeoutMinutes, config.FallbackQueueID).Scan(
		&saved.FlowID, &saved.TimeoutMinutes, &saved.FallbackQueueID, &saved.UpdatedAt)
	if err != nil {
		return TimeoutConfig{}, fmt.Errorf("save bot flow config: %w", err)
	}
	return saved, nil
}

func (r *postgresRepository) Delete(ctx context.Context, flowID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bot_flow_timeouts WHERE flow_id = $1`, flowID)
	if err != nil {
		return fmt.Errorf("delete bot flow config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bot flow config not found")
	}
	return nil
}
