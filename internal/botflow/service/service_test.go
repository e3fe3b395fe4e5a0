package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"chatdesk_backend/internal/botflow/repository"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
)

type fakeRepo struct {
	configs map[string]repository.TimeoutConfig
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{configs: make(map[string]repository.TimeoutConfig)}
}

func (f *fakeRepo) Get(_ context.Context, flowID string) (repository.TimeoutConfig, error) {
	config, ok := f.configs[flowID]
	if !ok {
		return repository.TimeoutConfig{}, apperr.NotFound("bot flow config not found")
	}
	return config, nil
}

func (f *fakeRepo) GetAll(context.Context) (map[string]repository.TimeoutConfig, error) {
	return f.configs, nil
}

func (f *fakeRepo) Save(_ context.Context, config repository.TimeoutConfig) (repository.TimeoutConfig, error) {
	f.configs[config.FlowID] = config
	return config, nil
}

func (f *fakeRepo) Delete(_ context.Context, flowID string) error {
	if _, ok := f.configs[flowID]; !ok {
		return apperr.NotFound("bot flow config not found")
	}
	delete(f.configs, flowID)
	return nil
}

type fakeQueueChecker struct {
	known map[uuid.UUID]bool
}

func (f fakeQueueChecker) Exists(_ context.Context, queueID uuid.UUID) (bool, error) {
	return f.known[queueID], nil
}

func TestSaveConfigRejectsUnknownFallbackQueue(t *testing.T) {
	svc := New(newFakeRepo(), fakeQueueChecker{known: map[uuid.UUID]bool{}}, logger.New("test"))

	_, err := svc.SaveConfig(context.Background(), "welcome", 30, uuid.New())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("got %v, want a validation error", err)
	}
}

func TestSaveConfigUpserts(t *testing.T) {
	queueID := uuid.New()
	repo := newFakeRepo()
	svc := New(repo, fakeQueueChecker{known: map[uuid.UUID]bool{queueID: true}}, logger.New("test"))

	if _, err := svc.SaveConfig(context.Background(), "welcome", 30, queueID); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.SaveConfig(context.Background(), "welcome", 45, queueID); err != nil {
		t.Fatalf("resave: %v", err)
	}

	config, err := svc.GetConfig(context.Background(), "welcome")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if config.TimeoutMinutes != 45 {
		t.Fatalf("timeout = %d, want the updated 45", config.TimeoutMinutes)
	}
}

func TestGetConfigUnknownFlow(t *testing.T) {
	svc := New(newFakeRepo(), fakeQueueChecker{}, logger.New("test"))

	_, err := svc.GetConfig(context.Background(), "missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}
