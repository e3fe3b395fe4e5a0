package routing

import (
	"context"

	"github.com/google/uuid"

	queuerepo "chatdesk_backend/internal/queues/repository"
)

// Candidate is an online, non-supervisor queue member with its current load
// (active plus attending conversations) at the moment of the decision.
type Candidate struct {
	AdvisorID uuid.UUID
	Load      int
}

// Strategy picks the advisor for a single assignment. Candidates arrive in
// roster order; load is recomputed by the caller before every call, so a
// strategy never batches decisions.
type Strategy interface {
	Name() string
	// Pick returns the chosen advisor. ok=false means the strategy does
	// not auto-assign (manual mode).
	Pick(ctx context.Context, queueID uuid.UUID, candidates []Candidate) (uuid.UUID, bool, error)
}

// ForMode returns the strategy for a queue's distribution mode. Unknown modes
// fall back to round-robin.
func ForMode(mode queuerepo.DistributionMode, cursor CursorStore) Strategy {
	switch mode {
	case queuerepo.ModeLeastBusy:
		return leastBusy{}
	case queuerepo.ModeManual:
		return manual{}
	default:
		return roundRobin{cursor: cursor}
	}
}

type roundRobin struct {
	cursor CursorStore
}

func (roundRobin) Name() string { return "round-robin" }

// Pick takes the advisor at the queue's rotating cursor and advances it,
// wrapping around the candidate list.
func (s roundRobin) Pick(ctx context.Context, queueID uuid.UUID, candidates []Candidate) (uuid.UUID, bool, error) {
	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}

	position, err := s.cursor.Advance(ctx, queueID)
	if err != nil {
		return uuid.Nil, false, err
	}

	return candidates[int(position%uint64(len(candidates)))].AdvisorID, true, nil
}

type leastBusy struct{}

func (leastBusy) Name() string { return "least-busy" }

// Pick chooses the candidate with the minimum current load; ties go to the
// first candidate in roster order.
func (leastBusy) Pick(_ context.Context, _ uuid.UUID, candidates []Candidate) (uuid.UUID, bool, error) {
	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Load < best.Load {
			best = c
		}
	}
	return best.AdvisorID, true, nil
}

type manual struct{}

func (manual) Name() string { return "manual" }

// Pick never assigns; manual queues wait for a human decision.
func (manual) Pick(context.Context, uuid.UUID, []Candidate) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}
