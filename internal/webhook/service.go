package webhook

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	convrepo "chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/events"
	"chatdesk_backend/internal/scheduler"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
	"chatdesk_backend/platform/phone"
)

// Enqueuer hands freshly queued conversations to the distribution worker.
type Enqueuer interface {
	EnqueueChatQueued(ctx context.Context, payload scheduler.ChatQueuedPayload) error
}

// MessageNotifier pushes an inbound message to the handling advisor.
type MessageNotifier interface {
	EmitNewMessage(userID, conversationID uuid.UUID, message string)
}

// IngestMessageInput is one inbound customer message from a channel
// integration.
type IngestMessageInput struct {
	Phone       string
	ContactName string
	Body        string
	QueueID     *uuid.UUID
	BotFlowID   *string
}

// IngestResult reports what ingestion did with the message.
type IngestResult struct {
	ConversationID uuid.UUID
	Created        bool
}

// Service ingests inbound channel messages: it attaches them to the
// customer's open conversation or opens a new one and triggers distribution.
type Service struct {
	conversations convrepo.Repository
	enqueuer      Enqueuer
	notifier      MessageNotifier
	bus           events.Bus
	log           *logger.Logger
}

// NewService creates the ingestion service. A nil enqueuer falls back to the
// in-process bus, which only works when the API process also runs the
// routing module.
func NewService(conversations convrepo.Repository, enqueuer Enqueuer, notifier MessageNotifier, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		conversations: conversations,
		enqueuer:      enqueuer,
		notifier:      notifier,
		bus:           bus,
		log:           log,
	}
}

// IngestMessage processes one inbound message.
func (s *Service) IngestMessage(ctx context.Context, input IngestMessageInput) (IngestResult, error) {
	normalized, err := phone.NormalizeE164(input.Phone)
	if err != nil {
		return IngestResult{}, apperr.Validation("invalid phone number")
	}

	existing, err := s.conversations.FindOpenByPhone(ctx, normalized)
	if err != nil {
		return IngestResult{}, fmt.Errorf("find open conversation: %w", err)
	}

	if existing != nil {
		if existing.AssignedTo != nil && s.notifier != nil {
			s.notifier.EmitNewMessage(*existing.AssignedTo, existing.ID, input.Body)
		}
		return IngestResult{ConversationID: existing.ID}, nil
	}

	created, err := s.conversations.Create(ctx, convrepo.CreateParams{
		Phone:       normalized,
		ContactName: input.ContactName,
		QueueID:     input.QueueID,
		BotFlowID:   input.BotFlowID,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Info("conversation opened from inbound message",
		"conversation_id", created.ID, "bot_owned", created.BotFlowID != nil)

	// Bot-owned conversations wait for the sweeper or flow completion;
	// queued ones trigger distribution right away.
	if created.BotFlowID == nil && created.QueueID != nil {
		s.triggerDistribution(ctx, created.ID, *created.QueueID)
	}

	return IngestResult{ConversationID: created.ID, Created: true}, nil
}

func (s *Service) triggerDistribution(ctx context.Context, conversationID, queueID uuid.UUID) {
	if s.enqueuer != nil {
		err := s.enqueuer.EnqueueChatQueued(ctx, scheduler.ChatQueuedPayload{
			ConversationID: conversationID.String(),
			QueueID:        queueID.String(),
		})
		if err == nil {
			return
		}
		// The legacy poller still picks the conversation up, but the bus
		// gives it a faster chance first.
		s.log.Error("chat-queued enqueue failed, falling back to bus", "error", err)
	}

	s.bus.Publish(ctx, events.ConversationQueued{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		QueueID:        queueID,
	})
}
