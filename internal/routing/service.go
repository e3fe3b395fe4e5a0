// Package routing implements the work-assignment core: it decides which
// advisor receives which conversation, reacting to queue and presence
// signals without a central scheduler loop.
package routing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	convrepo "chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/events"
	queuerepo "chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
)

// PresenceReader exposes the synchronous presence read path consumed during
// eligibility checks.
type PresenceReader interface {
	IsOnline(userID uuid.UUID) bool
}

// Service is the event-driven assignment service. It claims eligible
// conversations for online non-supervisor advisors using the owning queue's
// distribution strategy.
type Service struct {
	conversations convrepo.Repository
	queues        queuerepo.Repository
	presence      PresenceReader
	cursor        CursorStore
	bus           events.Bus
	log           *logger.Logger
}

// NewService creates the assignment service. All collaborators are injected;
// the service keeps no global state.
func NewService(
	conversations convrepo.Repository,
	queues queuerepo.Repository,
	presence PresenceReader,
	cursor CursorStore,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		queues:        queues,
		presence:      presence,
		cursor:        cursor,
		bus:           bus,
		log:           log,
	}
}

// OnChatQueued reacts to a conversation entering a queue. Ineligible
// conversations and queues with nobody online are a no-op, never an error.
func (s *Service) OnChatQueued(ctx context.Context, conversationID uuid.UUID) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.Warn("queued conversation vanished", "conversation_id", conversationID)
			return nil
		}
		return fmt.Errorf("load queued conversation: %w", err)
	}

	if !conv.Unclaimed() {
		s.log.Debug("conversation not eligible for auto-assignment",
			"conversation_id", conversationID, "status", conv.Status)
		return nil
	}

	queue, err := s.queues.GetByID(ctx, *conv.QueueID)
	if err != nil {
		return fmt.Errorf("load queue %s: %w", conv.QueueID, err)
	}

	strategy := ForMode(queue.DistributionMode, s.cursor)
	assigned, err := s.assignOne(ctx, conv, queue, strategy)
	if err != nil {
		return err
	}
	if !assigned {
		s.log.Info("conversation left queued, no eligible advisor online",
			"conversation_id", conversationID, "queue_id", queue.ID)
	}
	return nil
}

// OnAdvisorOnline reacts to an advisor becoming reachable: every queue the
// advisor serves gets its unclaimed backlog redistributed across the
// currently online roster.
func (s *Service) OnAdvisorOnline(ctx context.Context, advisorID uuid.UUID) error {
	queues, err := s.queues.ListForAdvisor(ctx, advisorID)
	if err != nil {
		return fmt.Errorf("list queues for advisor %s: %w", advisorID, err)
	}

	for _, queue := range queues {
		if _, err := s.RedistributeQueue(ctx, queue.ID); err != nil {
			// One queue failing must not starve the advisor's other queues.
			s.log.Error("queue redistribution failed",
				"queue_id", queue.ID, "advisor_id", advisorID, "error", err)
		}
	}
	return nil
}

// assignOne runs one strategy decision and claims the conversation. Returns
// false when the queue is manual or has no eligible advisor online. A lost
// claim race counts as assigned: the conversation is no longer ours to place.
func (s *Service) assignOne(ctx context.Context, conv convrepo.Conversation, queue queuerepo.Queue, strategy Strategy) (bool, error) {
	candidates, err := s.eligibleCandidates(ctx, queue)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		return false, nil
	}

	advisorID, ok, err := strategy.Pick(ctx, queue.ID, candidates)
	if err != nil {
		return false, fmt.Errorf("pick advisor: %w", err)
	}
	if !ok {
		return false, nil
	}

	claimed, err := s.conversations.Assign(ctx, conv.ID, advisorID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.log.Warn("claim lost to a concurrent trigger",
				"conversation_id", conv.ID, "advisor_id", advisorID)
			return true, nil
		}
		return false, fmt.Errorf("claim conversation %s: %w", conv.ID, err)
	}

	if err := s.conversations.CreateSystemEvent(ctx, claimed.ID, "assignment",
		"Conversation automatically assigned to an advisor"); err != nil {
		s.log.Error("system event insert failed", "conversation_id", claimed.ID, "error", err)
	}

	s.log.Assignment(claimed.ID.String(), advisorID.String(), queue.ID.String(), strategy.Name())
	s.bus.Publish(ctx, events.ConversationAssigned{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: claimed.ID,
		QueueID:        queue.ID,
		AdvisorID:      advisorID,
		Strategy:       strategy.Name(),
	})

	return true, nil
}

// eligibleCandidates builds the queue's online non-supervisor roster with
// fresh per-advisor load. Called before every single assignment so bursts
// spread naturally.
func (s *Service) eligibleCandidates(ctx context.Context, queue queuerepo.Queue) ([]Candidate, error) {
	online := make([]uuid.UUID, 0, len(queue.Members))
	for _, advisorID := range queue.Advisors() {
		if s.presence.IsOnline(advisorID) {
			online = append(online, advisorID)
		}
	}
	if len(online) == 0 {
		return nil, nil
	}

	loads, err := s.conversations.CountOpenByAdvisor(ctx, online)
	if err != nil {
		return nil, fmt.Errorf("load advisor work counts: %w", err)
	}

	candidates := make([]Candidate, 0, len(online))
	for _, advisorID := range online {
		candidates = append(candidates, Candidate{AdvisorID: advisorID, Load: loads[advisorID]})
	}
	return candidates, nil
}
