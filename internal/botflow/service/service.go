// Package service implements bot-flow timeout configuration management.
package service

import (
	"context"

	"github.com/google/uuid"

	"chatdesk_backend/internal/botflow/repository"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
)

// QueueChecker verifies that a fallback queue exists before it is configured.
type QueueChecker interface {
	Exists(ctx context.Context, queueID uuid.UUID) (bool, error)
}

// Service manages per-flow handoff policies.
type Service struct {
	repo   repository.Repository
	queues QueueChecker
	log    *logger.Logger
}

// New creates the bot-flow config service.
func New(repo repository.Repository, queues QueueChecker, log *logger.Logger) *Service {
	return &Service{repo: repo, queues: queues, log: log}
}

// GetConfig returns a flow's handoff policy.
func (s *Service) GetConfig(ctx context.Context, flowID string) (repository.TimeoutConfig, error) {
	return s.repo.Get(ctx, flowID)
}

// ListConfigs returns every configured flow.
func (s *Service) ListConfigs(ctx context.Context) (map[string]repository.TimeoutConfig, error) {
	return s.repo.GetAll(ctx)
}

// SaveConfig creates or replaces a flow's handoff policy. The fallback queue
// must exist; a dangling fallback would strand escalated conversations.
func (s *Service) SaveConfig(ctx context.Context, flowID string, timeoutMinutes int, fallbackQueueID uuid.UUID) (repository.TimeoutConfig, error) {
	exists, err := s.queues.Exists(ctx, fallbackQueueID)
	if err != nil {
		return repository.TimeoutConfig{}, err
	}
	if !exists {
		return repository.TimeoutConfig{}, apperr.Validation("fallback queue does not exist")
	}

	saved, err := s.repo.Save(ctx, repository.TimeoutConfig{
		FlowID:          flowID,
		TimeoutMinutes:  timeoutMinutes,
		FallbackQueueID: fallbackQueueID,
	})
	if err != nil {
		return repository.TimeoutConfig{}, err
	}

	s.log.Info("bot flow handoff policy saved",
		"flow_id", flowID, "timeout_minutes", timeoutMinutes, "fallback_queue_id", fallbackQueueID)
	return saved, nil
}

// DeleteConfig removes a flow's handoff policy. The sweeper then skips the
// flow's conversations entirely.
func (s *Service) DeleteConfig(ctx context.Context, flowID string) error {
	return s.repo.Delete(ctx, flowID)
}
