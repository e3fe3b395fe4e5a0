// Package botflow owns per-flow bot handoff configuration: how long an
// automated flow may hold a conversation before it is escalated to a human
// queue.
package botflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatdesk_backend/internal/botflow/handler"
	"chatdesk_backend/internal/botflow/repository"
	"chatdesk_backend/internal/botflow/service"
	apphttp "chatdesk_backend/internal/http"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
)

// QueueReader is the slice of the queue directory the module needs to
// validate fallback queues.
type QueueReader interface {
	Exists(ctx context.Context, queueID uuid.UUID) (bool, error)
}

// Module is the bot-flow configuration module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the botflow module.
func NewModule(pool *pgxpool.Pool, queues QueueReader, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, queues, log)
	h := handler.New(svc)

	return &Module{handler: h, service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "botflow"
}

// Repository exposes the config store for the handoff sweeper.
func (m *Module) Repository() repository.Repository {
	return m.repo
}

// RegisterRoutes mounts the config endpoints. All of them are admin-only.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/botflows")
	group.GET("/timeouts", m.handler.List)
	group.GET("/:flowId/timeout", m.handler.Get)
	group.PUT("/:flowId/timeout", m.handler.Save)
	group.DELETE("/:flowId/timeout", m.handler.Delete)
}

// QueueExistenceChecker adapts a queue lookup to the QueueReader interface.
type QueueExistenceChecker struct {
	GetByID func(ctx context.Context, id uuid.UUID) error
}

// Exists reports whether the queue lookup succeeds. NotFound maps to false;
// any other error is surfaced.
func (c QueueExistenceChecker) Exists(ctx context.Context, queueID uuid.UUID) (bool, error) {
	err := c.GetByID(ctx, queueID)
	if err == nil {
		return true, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	return false, err
}
