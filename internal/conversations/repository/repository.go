package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatdesk_backend/platform/apperr"
)

const conversationNotFoundMessage = "conversation not found"

const conversationColumns = `
	id, phone, contact_name, status, assigned_to, queue_id,
	bot_flow_id, bot_started_at, queued_at, created_at, updated_at`

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new conversation store repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// List retrieves conversations matching the given filters, newest first.
func (r *Repo) List(ctx context.Context, params ListParams) ([]Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	args := []interface{}{}

	if params.Status != nil {
		args = append(args, *params.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if params.QueueID != nil {
		args = append(args, *params.QueueID)
		query += ` AND queue_id = $` + strconv.Itoa(len(args))
	}
	if params.AssignedTo != nil {
		args = append(args, *params.AssignedTo)
		query += ` AND assigned_to = $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY created_at DESC`
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// GetByID retrieves a conversation by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.NotFound(conversationNotFoundMessage)
		}
		return Conversation{}, fmt.Errorf("get conversation by id: %w", err)
	}
	return conv, nil
}

// Create inserts a new conversation record.
func (r *Repo) Create(ctx context.Context, params CreateParams) (Conversation, error) {
	query := `
		INSERT INTO conversations (phone, contact_name, status, queue_id, bot_flow_id, bot_started_at, queued_at)
		VALUES ($1, $2, 'active', $3, $4,
			CASE WHEN $4::text IS NOT NULL THEN now() END,
			CASE WHEN $4::text IS NULL THEN now() END)
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, params.Phone, params.ContactName, params.QueueID, params.BotFlowID))
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// FindOpenByPhone returns the newest non-closed conversation for a phone number.
func (r *Repo) FindOpenByPhone(ctx context.Context, phone string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE phone = $1 AND status IN ('active', 'attending')
		ORDER BY created_at DESC
		LIMIT 1`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open conversation by phone: %w", err)
	}
	return &conv, nil
}

// Assign claims the conversation for the advisor. The WHERE clause is the
// at-most-one-claim boundary: concurrent triggers race here and exactly one
// update takes effect.
func (r *Repo) Assign(ctx context.Context, id, advisorID uuid.UUID) (Conversation, error) {
	query := `
		UPDATE conversations
		SET assigned_to = $2, updated_at = now()
		WHERE id = $1 AND assigned_to IS NULL AND status = 'active'
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id, advisorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.Conflict("conversation already claimed or not active")
		}
		return Conversation{}, fmt.Errorf("assign conversation: %w", err)
	}
	return conv, nil
}

// ReleaseActiveAssignments returns an advisor's unworked claims to their queues.
func (r *Repo) ReleaseActiveAssignments(ctx context.Context, advisorID uuid.UUID) ([]Conversation, error) {
	query := `
		UPDATE conversations
		SET assigned_to = NULL, updated_at = now()
		WHERE assigned_to = $1 AND status = 'active'
		RETURNING ` + conversationColumns

	rows, err := r.pool.Query(ctx, query, advisorID)
	if err != nil {
		return nil, fmt.Errorf("release active assignments: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// Release hands a single unworked claim back to its queue.
func (r *Repo) Release(ctx context.Context, id, advisorID uuid.UUID) (Conversation, error) {
	query := `
		UPDATE conversations
		SET assigned_to = NULL, queued_at = now(), updated_at = now()
		WHERE id = $1 AND assigned_to = $2 AND status = 'active'
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id, advisorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.Conflict("conversation not releasable by this advisor")
		}
		return Conversation{}, fmt.Errorf("release conversation: %w", err)
	}
	return conv, nil
}

// Accept moves an active claimed conversation to attending.
func (r *Repo) Accept(ctx context.Context, id, advisorID uuid.UUID) (Conversation, error) {
	query := `
		UPDATE conversations
		SET status = 'attending', updated_at = now()
		WHERE id = $1 AND assigned_to = $2 AND status = 'active'
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id, advisorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.Conflict("conversation not claimable by this advisor")
		}
		return Conversation{}, fmt.Errorf("accept conversation: %w", err)
	}
	return conv, nil
}

// Close terminates a conversation.
func (r *Repo) Close(ctx context.Context, id uuid.UUID) (Conversation, error) {
	query := `
		UPDATE conversations
		SET status = 'closed', updated_at = now()
		WHERE id = $1 AND status <> 'closed'
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.NotFound(conversationNotFoundMessage)
		}
		return Conversation{}, fmt.Errorf("close conversation: %w", err)
	}
	return conv, nil
}

// Escalate ends bot ownership and queues the conversation for humans. The
// bot_flow_id guard makes concurrent sweeps idempotent.
func (r *Repo) Escalate(ctx context.Context, id, queueID uuid.UUID) (Conversation, error) {
	query := `
		UPDATE conversations
		SET bot_flow_id = NULL, bot_started_at = NULL,
		    queue_id = $2, queued_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'active' AND bot_flow_id IS NOT NULL
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id, queueID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.Conflict("conversation no longer bot-owned")
		}
		return Conversation{}, fmt.Errorf("escalate conversation: %w", err)
	}
	return conv, nil
}

// ListUnclaimedByQueue returns auto-assignable conversations, oldest queued first.
func (r *Repo) ListUnclaimedByQueue(ctx context.Context, queueID uuid.UUID) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE queue_id = $1 AND status = 'active'
		  AND assigned_to IS NULL AND bot_flow_id IS NULL
		ORDER BY queued_at ASC NULLS LAST`

	rows, err := r.pool.Query(ctx, query, queueID)
	if err != nil {
		return nil, fmt.Errorf("list unclaimed conversations: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// ListBotActive returns active conversations still owned by a bot flow.
func (r *Repo) ListBotActive(ctx context.Context) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE status = 'active' AND bot_flow_id IS NOT NULL AND bot_started_at IS NOT NULL
		ORDER BY bot_started_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list bot-active conversations: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// CountOpenByAdvisor returns the active+attending count per advisor.
func (r *Repo) CountOpenByAdvisor(ctx context.Context, advisorIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(advisorIDs))
	for _, id := range advisorIDs {
		counts[id] = 0
	}
	if len(advisorIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT assigned_to, COUNT(*)
		FROM conversations
		WHERE assigned_to = ANY($1) AND status IN ('active', 'attending')
		GROUP BY assigned_to`

	rows, err := r.pool.Query(ctx, query, advisorIDs)
	if err != nil {
		return nil, fmt.Errorf("count open conversations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var advisorID uuid.UUID
		var count int
		if err := rows.Scan(&advisorID, &count); err != nil {
			return nil, fmt.Errorf("scan advisor load: %w", err)
		}
		counts[advisorID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate advisor loads: %w", err)
	}

	return counts, nil
}

// CreateSystemEvent inserts an informational entry in a conversation's history.
func (r *Repo) CreateSystemEvent(ctx context.Context, conversationID uuid.UUID, kind, body string) error {
	query := `INSERT INTO conversation_events (conversation_id, kind, body) VALUES ($1, $2, $3)`

	if _, err := r.pool.Exec(ctx, query, conversationID, kind, body); err != nil {
		return fmt.Errorf("create system event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.Phone, &c.ContactName, &c.Status, &c.AssignedTo, &c.QueueID,
		&c.BotFlowID, &c.BotStartedAt, &c.QueuedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanConversations(rows pgx.Rows) ([]Conversation, error) {
	var result []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		result = append(result, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return result, nil
}
