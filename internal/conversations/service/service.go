package service

import (
	"context"

	"github.com/google/uuid"

	"chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/conversations/transport"
	"chatdesk_backend/internal/events"
	"chatdesk_backend/platform/logger"
)

// Notifier pushes conversation changes to the real-time gateway.
type Notifier interface {
	EmitConversationUpdate(conv transport.ConversationResponse)
}

// Service provides business logic for the conversation store.
type Service struct {
	repo     repository.Repository
	notifier Notifier
	bus      events.Bus
	log      *logger.Logger
}

// New creates a new conversation service.
func New(repo repository.Repository, notifier Notifier, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, bus: bus, log: log}
}

// List retrieves conversations matching the request filters.
func (s *Service) List(ctx context.Context, req transport.ListConversationsRequest, requesterID uuid.UUID) (transport.ConversationListResponse, error) {
	params := repository.ListParams{Limit: req.Limit}
	if req.Status != "" {
		status := repository.Status(req.Status)
		params.Status = &status
	}
	if req.QueueID != "" {
		queueID, err := uuid.Parse(req.QueueID)
		if err == nil {
			params.QueueID = &queueID
		}
	}
	if req.Mine {
		params.AssignedTo = &requesterID
	}

	items, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.ConversationListResponse{}, err
	}

	out := transport.ConversationListResponse{
		Conversations: make([]transport.ConversationResponse, 0, len(items)),
	}
	for _, item := range items {
		out.Conversations = append(out.Conversations, transport.ToResponse(item))
	}
	return out, nil
}

// GetByID retrieves a conversation by its id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.ConversationResponse, error) {
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.ConversationResponse{}, err
	}
	return transport.ToResponse(conv), nil
}

// Accept moves a claimed conversation to attending. Only the assigned advisor
// may accept; acceptance is what takes the claim out of the released-on-logout
// set.
func (s *Service) Accept(ctx context.Context, id, advisorID uuid.UUID) (transport.ConversationResponse, error) {
	conv, err := s.repo.Accept(ctx, id, advisorID)
	if err != nil {
		return transport.ConversationResponse{}, err
	}

	s.log.Info("conversation accepted", "conversation_id", id, "advisor_id", advisorID)
	resp := transport.ToResponse(conv)
	if s.notifier != nil {
		s.notifier.EmitConversationUpdate(resp)
	}
	return resp, nil
}

// Release gives a claimed conversation back to its queue. The conversation
// re-enters automatic distribution, so the releasing advisor is a candidate
// again unless the queue's strategy picks someone else.
func (s *Service) Release(ctx context.Context, id, advisorID uuid.UUID) (transport.ConversationResponse, error) {
	conv, err := s.repo.Release(ctx, id, advisorID)
	if err != nil {
		return transport.ConversationResponse{}, err
	}

	if err := s.repo.CreateSystemEvent(ctx, conv.ID, "release", "Conversation returned to queue by advisor"); err != nil {
		s.log.Error("failed to record release event", "conversation_id", conv.ID, "error", err)
	}

	s.log.Info("conversation released", "conversation_id", id, "advisor_id", advisorID)
	resp := transport.ToResponse(conv)
	if s.notifier != nil {
		s.notifier.EmitConversationUpdate(resp)
	}
	if s.bus != nil && conv.QueueID != nil {
		s.bus.Publish(ctx, events.ConversationQueued{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			QueueID:        *conv.QueueID,
		})
	}
	return resp, nil
}

// Close terminates a conversation.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (transport.ConversationResponse, error) {
	conv, err := s.repo.Close(ctx, id)
	if err != nil {
		return transport.ConversationResponse{}, err
	}

	s.log.Info("conversation closed", "conversation_id", id)
	resp := transport.ToResponse(conv)
	if s.notifier != nil {
		s.notifier.EmitConversationUpdate(resp)
	}
	return resp, nil
}
