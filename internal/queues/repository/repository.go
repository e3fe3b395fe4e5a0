package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatdesk_backend/platform/apperr"
)

const queueNotFoundMessage = "queue not found"

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new queue directory repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetAll retrieves every queue with its full roster, members in insertion order.
func (r *Repo) GetAll(ctx context.Context) ([]Queue, error) {
	query := `
		SELECT q.id, q.name, q.distribution_mode,
		       m.advisor_id, m.is_supervisor, m.position
		FROM queues q
		LEFT JOIN queue_members m ON m.queue_id = q.id
		ORDER BY q.name ASC, m.position ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	return scanQueueRows(rows)
}

// GetByID retrieves a single queue with its roster.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Queue, error) {
	query := `
		SELECT q.id, q.name, q.distribution_mode,
		       m.advisor_id, m.is_supervisor, m.position
		FROM queues q
		LEFT JOIN queue_members m ON m.queue_id = q.id
		WHERE q.id = $1
		ORDER BY m.position ASC`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return Queue{}, fmt.Errorf("get queue by id: %w", err)
	}
	defer rows.Close()

	queues, err := scanQueueRows(rows)
	if err != nil {
		return Queue{}, err
	}
	if len(queues) == 0 {
		return Queue{}, apperr.NotFound(queueNotFoundMessage)
	}
	return queues[0], nil
}

// ListForAdvisor retrieves the queues where the advisor is a non-supervisor member.
func (r *Repo) ListForAdvisor(ctx context.Context, advisorID uuid.UUID) ([]Queue, error) {
	query := `
		SELECT q.id, q.name, q.distribution_mode,
		       m.advisor_id, m.is_supervisor, m.position
		FROM queues q
		JOIN queue_members m ON m.queue_id = q.id
		WHERE q.id IN (
			SELECT queue_id FROM queue_members
			WHERE advisor_id = $1 AND is_supervisor = FALSE
		)
		ORDER BY q.name ASC, m.position ASC`

	rows, err := r.pool.Query(ctx, query, advisorID)
	if err != nil {
		return nil, fmt.Errorf("list queues for advisor: %w", err)
	}
	defer rows.Close()

	return scanQueueRows(rows)
}

// AddMember adds an advisor to a queue roster. Re-adding updates the
// supervisor flag and keeps the original position.
func (r *Repo) AddMember(ctx context.Context, queueID, advisorID uuid.UUID, isSupervisor bool) error {
	query := `
		INSERT INTO queue_members (queue_id, advisor_id, is_supervisor, position)
		VALUES ($1, $2, $3, (
			SELECT COALESCE(MAX(position), 0) + 1 FROM queue_members WHERE queue_id = $1
		))
		ON CONFLICT (queue_id, advisor_id)
		DO UPDATE SET is_supervisor = EXCLUDED.is_supervisor`

	if _, err := r.pool.Exec(ctx, query, queueID, advisorID, isSupervisor); err != nil {
		return fmt.Errorf("add queue member: %w", err)
	}
	return nil
}

// RemoveMember removes an advisor from a queue roster.
func (r *Repo) RemoveMember(ctx context.Context, queueID, advisorID uuid.UUID) error {
	query := `DELETE FROM queue_members WHERE queue_id = $1 AND advisor_id = $2`

	tag, err := r.pool.Exec(ctx, query, queueID, advisorID)
	if err != nil {
		return fmt.Errorf("remove queue member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue member not found")
	}
	return nil
}

func scanQueueRows(rows pgx.Rows) ([]Queue, error) {
	var result []Queue
	index := make(map[uuid.UUID]int)

	for rows.Next() {
		var (
			id           uuid.UUID
			name         string
			mode         string
			advisorID    *uuid.UUID
			isSupervisor *bool
			position     *int
		)
		if err := rows.Scan(&id, &name, &mode, &advisorID, &isSupervisor, &position); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}

		pos, ok := index[id]
		if !ok {
			result = append(result, Queue{
				ID:               id,
				Name:             name,
				DistributionMode: DistributionMode(mode),
			})
			pos = len(result) - 1
			index[id] = pos
		}

		if advisorID != nil {
			member := Member{AdvisorID: *advisorID}
			if isSupervisor != nil {
				member.IsSupervisor = *isSupervisor
			}
			if position != nil {
				member.Position = *position
			}
			result[pos].Members = append(result[pos].Members, member)
		}
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("iterate queue rows: %w", err)
	}

	return result, nil
}
