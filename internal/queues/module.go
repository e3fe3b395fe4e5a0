// Package queues provides the queue directory bounded context module.
// It owns queue definitions and advisor rosters consumed by the routing core.
package queues

import (
	apphttp "chatdesk_backend/internal/http"
	"chatdesk_backend/internal/queues/handler"
	"chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/internal/queues/service"
	"chatdesk_backend/platform/logger"
	"chatdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the queue directory bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the queues module with all its dependencies.
func NewModule(pool *pgxpool.Pool, presence service.PresenceReader, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, presence, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "queues"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() repository.Repository {
	return m.repo
}

// RegisterRoutes mounts queue directory routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/queues", m.handler.List)
	ctx.Protected.GET("/queues/:id", m.handler.GetByID)

	adminGroup := ctx.Admin.Group("/queues")
	adminGroup.POST("/:id/members", m.handler.AddMember)
	adminGroup.DELETE("/:id/members/:advisorId", m.handler.RemoveMember)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
