// Package notification fans routing and presence events out to their
// consumers: connected advisors over the SSE stream and sibling services over
// the message queue.
package notification

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	convtransport "chatdesk_backend/internal/conversations/transport"
	"chatdesk_backend/internal/events"
	apphttp "chatdesk_backend/internal/http"
	"chatdesk_backend/internal/notification/mq"
	"chatdesk_backend/internal/notification/sse"
	"chatdesk_backend/platform/httpkit"
	"chatdesk_backend/platform/logger"
)

// Module is the notification fan-out module implementing http.Module.
type Module struct {
	sse *sse.Service
	mq  mq.Publisher
	log *logger.Logger
}

// NewModule creates the notification module. A nil publisher disables the
// message queue fan-out.
func NewModule(sseService *sse.Service, publisher mq.Publisher, log *logger.Logger) *Module {
	if publisher == nil {
		publisher = mq.Nop{}
	}
	return &Module{sse: sseService, mq: publisher, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// SSE exposes the stream hub for modules that push directly.
func (m *Module) SSE() *sse.Service { return m.sse }

// RegisterRoutes mounts the advisor event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/stream", m.sse.Handler(func(c *gin.Context) (uuid.UUID, bool) {
		id := httpkit.GetIdentity(c)
		if id == nil {
			return uuid.Nil, false
		}
		return id.UserID(), true
	}))
}

// RegisterHandlers subscribes the fan-out to the routing and presence events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ConversationAssigned{}.EventName(), m)
	bus.Subscribe(events.ConversationReleased{}.EventName(), m)
	bus.Subscribe(events.ConversationEscalated{}.EventName(), m)
	bus.Subscribe(events.AdvisorCameOnline{}.EventName(), m)
	bus.Subscribe(events.AdvisorWentOffline{}.EventName(), m)
}

// Handle pushes each event to the stream and mirrors it onto the queue.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ConversationAssigned:
		m.sse.EmitConversationUpdate(e.AdvisorID, e.ConversationID, map[string]interface{}{
			"queueId":  e.QueueID,
			"strategy": e.Strategy,
			"assigned": true,
		})
		return m.publish(ctx, e.EventName(), e)
	case events.ConversationReleased:
		m.sse.EmitConversationUpdate(e.AdvisorID, e.ConversationID, map[string]interface{}{
			"assigned": false,
		})
		return m.publish(ctx, e.EventName(), e)
	case events.ConversationEscalated:
		return m.publish(ctx, e.EventName(), e)
	case events.AdvisorCameOnline:
		m.sse.EmitAdvisorPresenceUpdate(e.AdvisorID, true)
		return m.publish(ctx, e.EventName(), e)
	case events.AdvisorWentOffline:
		m.sse.EmitAdvisorPresenceUpdate(e.AdvisorID, false)
		return m.publish(ctx, e.EventName(), e)
	default:
		m.log.Warn("notification module received unexpected event", "event", event.EventName())
		return nil
	}
}

func (m *Module) publish(ctx context.Context, key string, event events.Event) error {
	if err := m.mq.Publish(ctx, key, mq.NewEnvelope(key, event)); err != nil {
		// Queue trouble must not fail the in-process handler chain.
		m.log.Error("mq publish failed", "key", key, "error", err)
	}
	return nil
}

// EmitConversationUpdate implements the conversation service's notifier: a
// state change is pushed to the advisor holding the conversation.
func (m *Module) EmitConversationUpdate(conv convtransport.ConversationResponse) {
	if conv.AssignedTo == nil {
		return
	}
	advisorID, err := uuid.Parse(*conv.AssignedTo)
	if err != nil {
		return
	}
	conversationID, err := uuid.Parse(conv.ID)
	if err != nil {
		return
	}
	m.sse.EmitConversationUpdate(advisorID, conversationID, conv)
}
