package repository

import (
	"context"

	"github.com/google/uuid"
)

// DistributionMode selects how unclaimed work in a queue is handed out.
type DistributionMode string

const (
	ModeRoundRobin DistributionMode = "round-robin"
	ModeLeastBusy  DistributionMode = "least-busy"
	ModeManual     DistributionMode = "manual"
)

// Member is an advisor's membership in a queue. Supervisors are members who
// never receive auto-assigned work.
type Member struct {
	AdvisorID    uuid.UUID
	IsSupervisor bool
	Position     int
}

// Queue is a waiting line of conversations with an advisor roster.
type Queue struct {
	ID               uuid.UUID
	Name             string
	DistributionMode DistributionMode
	Members          []Member
}

// Advisors returns the ids of non-supervisor members in roster order.
func (q Queue) Advisors() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(q.Members))
	for _, m := range q.Members {
		if !m.IsSupervisor {
			ids = append(ids, m.AdvisorID)
		}
	}
	return ids
}

// HasAdvisor reports whether the advisor is a non-supervisor member.
func (q Queue) HasAdvisor(advisorID uuid.UUID) bool {
	for _, m := range q.Members {
		if m.AdvisorID == advisorID && !m.IsSupervisor {
			return true
		}
	}
	return false
}

// Repository provides access to the queue directory.
type Repository interface {
	GetAll(ctx context.Context) ([]Queue, error)
	GetByID(ctx context.Context, id uuid.UUID) (Queue, error)
	// ListForAdvisor returns the queues where the advisor is a
	// non-supervisor member.
	ListForAdvisor(ctx context.Context, advisorID uuid.UUID) ([]Queue, error)
	AddMember(ctx context.Context, queueID, advisorID uuid.UUID, isSupervisor bool) error
	RemoveMember(ctx context.Context, queueID, advisorID uuid.UUID) error
}
