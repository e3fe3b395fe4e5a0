package routing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatdesk_backend/internal/events"
	queuerepo "chatdesk_backend/internal/queues/repository"
)

// RedistributeQueue walks a queue's unclaimed backlog oldest-first and
// assigns each conversation with a freshly evaluated strategy decision.
// Manual queues are skipped. Returns the number of conversations placed.
func (s *Service) RedistributeQueue(ctx context.Context, queueID uuid.UUID) (int, error) {
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("load queue %s: %w", queueID, err)
	}
	if queue.DistributionMode == queuerepo.ModeManual {
		return 0, nil
	}

	backlog, err := s.conversations.ListUnclaimedByQueue(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("list unclaimed backlog: %w", err)
	}
	if len(backlog) == 0 {
		return 0, nil
	}

	strategy := ForMode(queue.DistributionMode, s.cursor)
	placed := 0
	for _, conv := range backlog {
		// Candidate loads are recomputed inside assignOne for every item so
		// a drained advisor does not absorb the whole backlog.
		assigned, err := s.assignOne(ctx, conv, queue, strategy)
		if err != nil {
			return placed, err
		}
		if !assigned {
			// Nobody eligible is online. The rest of the backlog shares the
			// same roster, so stop here and wait for the next trigger.
			s.log.Warn("backlog left unassigned, no eligible advisor online",
				"queue_id", queueID, "remaining", len(backlog)-placed)
			break
		}
		placed++
	}
	return placed, nil
}

// ReturnUnclaimedWork handles an advisor going offline: every active claim
// the advisor never accepted is released back to its queue and immediately
// redistributed. Attending conversations stay with the advisor.
func (s *Service) ReturnUnclaimedWork(ctx context.Context, advisorID uuid.UUID) error {
	released, err := s.conversations.ReleaseActiveAssignments(ctx, advisorID)
	if err != nil {
		return fmt.Errorf("release claims of advisor %s: %w", advisorID, err)
	}
	if len(released) == 0 {
		return nil
	}

	affected := make(map[uuid.UUID]struct{})
	for _, conv := range released {
		if err := s.conversations.CreateSystemEvent(ctx, conv.ID, "release",
			"Conversation returned to the queue, advisor went offline"); err != nil {
			s.log.Error("system event insert failed", "conversation_id", conv.ID, "error", err)
		}
		s.bus.Publish(ctx, events.ConversationReleased{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			QueueID:        conv.QueueID,
			AdvisorID:      advisorID,
		})
		if conv.QueueID != nil {
			affected[*conv.QueueID] = struct{}{}
		}
	}

	s.log.Info("unclaimed work returned",
		"advisor_id", advisorID, "released", len(released), "queues", len(affected))

	for queueID := range affected {
		if _, err := s.RedistributeQueue(ctx, queueID); err != nil {
			s.log.Error("redistribution after release failed",
				"queue_id", queueID, "error", err)
		}
	}
	return nil
}
