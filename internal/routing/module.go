package routing

import (
	"context"

	"chatdesk_backend/internal/events"
	"chatdesk_backend/platform/logger"
)

// Module subscribes the assignment service to the domain events that drive
// distribution. It has no HTTP surface; all work arrives through the bus or
// the task worker.
type Module struct {
	service *Service
	log     *logger.Logger
}

func NewModule(service *Service, log *logger.Logger) *Module {
	return &Module{service: service, log: log}
}

func (m *Module) Name() string { return "routing" }

// Service exposes the assignment service for the task worker and the
// schedulers, which call it directly instead of going through the bus.
func (m *Module) Service() *Service { return m.service }

// RegisterHandlers subscribes to the distribution triggers.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ConversationQueued{}.EventName(), m)
	bus.Subscribe(events.AdvisorCameOnline{}.EventName(), m)
	bus.Subscribe(events.AdvisorWentOffline{}.EventName(), m)
}

// Handle dispatches bus events to the assignment service.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ConversationQueued:
		return m.service.OnChatQueued(ctx, e.ConversationID)
	case events.AdvisorCameOnline:
		return m.service.OnAdvisorOnline(ctx, e.AdvisorID)
	case events.AdvisorWentOffline:
		return m.service.ReturnUnclaimedWork(ctx, e.AdvisorID)
	default:
		m.log.Warn("routing module received unexpected event", "event", event.EventName())
		return nil
	}
}
