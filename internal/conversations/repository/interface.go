package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusActive covers queued conversations, claimed or not, that the
	// advisor has not started working yet.
	StatusActive Status = "active"
	// StatusAttending means an advisor accepted the claim and is working it.
	StatusAttending Status = "attending"
	StatusClosed    Status = "closed"
)

// Conversation is a customer conversation record.
type Conversation struct {
	ID           uuid.UUID
	Phone        string
	ContactName  string
	Status       Status
	AssignedTo   *uuid.UUID
	QueueID      *uuid.UUID
	BotFlowID    *string
	BotStartedAt *time.Time
	QueuedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Unclaimed reports whether the conversation can still be auto-assigned:
// active, no advisor, no bot flow, waiting in a queue.
func (c Conversation) Unclaimed() bool {
	return c.Status == StatusActive && c.AssignedTo == nil && c.BotFlowID == nil && c.QueueID != nil
}

// SystemEvent is an informational entry in a conversation's history.
type SystemEvent struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Kind           string
	Body           string
	CreatedAt      time.Time
}

// ListParams filters conversation listings.
type ListParams struct {
	Status     *Status
	QueueID    *uuid.UUID
	AssignedTo *uuid.UUID
	Limit      int
}

// CreateParams creates a new inbound conversation.
type CreateParams struct {
	Phone       string
	ContactName string
	QueueID     *uuid.UUID
	BotFlowID   *string
}

// Repository is the conversation store consumed by the routing core.
type Repository interface {
	List(ctx context.Context, params ListParams) ([]Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (Conversation, error)

	// Create inserts a new conversation. When BotFlowID is set the bot
	// owns the conversation and bot_started_at is stamped; otherwise
	// queued_at is stamped.
	Create(ctx context.Context, params CreateParams) (Conversation, error)

	// FindOpenByPhone returns the newest non-closed conversation for a
	// phone number, if any.
	FindOpenByPhone(ctx context.Context, phone string) (*Conversation, error)

	// Assign claims the conversation for the advisor. The claim is an
	// atomic conditional update: it succeeds only when assigned_to is
	// still NULL and the conversation is still active at write time.
	// A lost race returns apperr.Conflict.
	Assign(ctx context.Context, id, advisorID uuid.UUID) (Conversation, error)

	// ReleaseActiveAssignments clears the assignment of every active
	// (not yet attending) conversation claimed by the advisor and
	// returns the released records. Attending work is untouched.
	ReleaseActiveAssignments(ctx context.Context, advisorID uuid.UUID) ([]Conversation, error)

	// Release hands a single claimed, not yet attended conversation back
	// to its queue: clears assigned_to and refreshes queued_at. Only the
	// assigned advisor may release, and only while the claim is active.
	Release(ctx context.Context, id, advisorID uuid.UUID) (Conversation, error)

	// Accept moves an active claimed conversation to attending. Only the
	// assigned advisor may accept.
	Accept(ctx context.Context, id, advisorID uuid.UUID) (Conversation, error)

	// Close terminates a conversation.
	Close(ctx context.Context, id uuid.UUID) (Conversation, error)

	// Escalate atomically ends bot ownership: clears bot_flow_id and
	// bot_started_at, sets the fallback queue and queued_at. It is a
	// no-op (apperr.Conflict) when another sweep already escalated.
	Escalate(ctx context.Context, id, queueID uuid.UUID) (Conversation, error)

	// ListUnclaimedByQueue returns the auto-assignable conversations of a
	// queue, oldest queued first.
	ListUnclaimedByQueue(ctx context.Context, queueID uuid.UUID) ([]Conversation, error)

	// ListBotActive returns active conversations still owned by a bot flow.
	ListBotActive(ctx context.Context) ([]Conversation, error)

	// CountOpenByAdvisor returns each advisor's current active+attending
	// conversation count. Advisors with no open work map to zero.
	CountOpenByAdvisor(ctx context.Context, advisorIDs []uuid.UUID) (map[uuid.UUID]int, error)

	CreateSystemEvent(ctx context.Context, conversationID uuid.UUID, kind, body string) error
}
