package service

import (
	"context"

	"github.com/google/uuid"

	"chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/internal/queues/transport"
	"chatdesk_backend/platform/logger"
)

// PresenceReader exposes the synchronous presence read path.
type PresenceReader interface {
	IsOnline(userID uuid.UUID) bool
}

// Service provides business logic for the queue directory.
type Service struct {
	repo     repository.Repository
	presence PresenceReader
	log      *logger.Logger
}

// New creates a new queue directory service.
func New(repo repository.Repository, presence PresenceReader, log *logger.Logger) *Service {
	return &Service{repo: repo, presence: presence, log: log}
}

// List retrieves all queues with per-member presence.
func (s *Service) List(ctx context.Context) (transport.QueueListResponse, error) {
	queues, err := s.repo.GetAll(ctx)
	if err != nil {
		return transport.QueueListResponse{}, err
	}

	out := transport.QueueListResponse{Queues: make([]transport.QueueResponse, 0, len(queues))}
	for _, q := range queues {
		out.Queues = append(out.Queues, s.toResponse(q))
	}
	return out, nil
}

// GetByID retrieves a queue by its id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.QueueResponse, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.QueueResponse{}, err
	}
	return s.toResponse(q), nil
}

// AddMember adds an advisor to a queue roster.
func (s *Service) AddMember(ctx context.Context, queueID, advisorID uuid.UUID, isSupervisor bool) error {
	if _, err := s.repo.GetByID(ctx, queueID); err != nil {
		return err
	}
	if err := s.repo.AddMember(ctx, queueID, advisorID, isSupervisor); err != nil {
		return err
	}
	s.log.Info("queue member added", "queue_id", queueID, "advisor_id", advisorID, "supervisor", isSupervisor)
	return nil
}

// RemoveMember removes an advisor from a queue roster.
func (s *Service) RemoveMember(ctx context.Context, queueID, advisorID uuid.UUID) error {
	if err := s.repo.RemoveMember(ctx, queueID, advisorID); err != nil {
		return err
	}
	s.log.Info("queue member removed", "queue_id", queueID, "advisor_id", advisorID)
	return nil
}

func (s *Service) toResponse(q repository.Queue) transport.QueueResponse {
	members := make([]transport.MemberResponse, 0, len(q.Members))
	for _, m := range q.Members {
		online := false
		if s.presence != nil {
			online = s.presence.IsOnline(m.AdvisorID)
		}
		members = append(members, transport.MemberResponse{
			AdvisorID:    m.AdvisorID.String(),
			IsSupervisor: m.IsSupervisor,
			Online:       online,
		})
	}

	return transport.QueueResponse{
		ID:               q.ID.String(),
		Name:             q.Name,
		DistributionMode: string(q.DistributionMode),
		Members:          members,
	}
}
