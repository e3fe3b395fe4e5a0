// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"chatdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Routing Domain Events
// =============================================================================

// ConversationQueued is published when a conversation enters a queue and is
// ready for distribution (new inbound work or a bot escalation).
type ConversationQueued struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	QueueID        uuid.UUID `json:"queueId"`
}

func (e ConversationQueued) EventName() string { return "routing.conversation.queued" }

// ConversationAssigned is published after a claim succeeds.
type ConversationAssigned struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	QueueID        uuid.UUID `json:"queueId"`
	AdvisorID      uuid.UUID `json:"advisorId"`
	Strategy       string    `json:"strategy"`
}

func (e ConversationAssigned) EventName() string { return "routing.conversation.assigned" }

// ConversationReleased is published when claimed-but-unworked conversations
// are returned to their queue.
type ConversationReleased struct {
	BaseEvent
	ConversationID uuid.UUID  `json:"conversationId"`
	QueueID        *uuid.UUID `json:"queueId,omitempty"`
	AdvisorID      uuid.UUID  `json:"advisorId"`
}

func (e ConversationReleased) EventName() string { return "routing.conversation.released" }

// ConversationEscalated is published when the bot-handoff sweeper moves a
// conversation out of its automated flow into a human queue.
type ConversationEscalated struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	FlowID         string    `json:"flowId"`
	QueueID        uuid.UUID `json:"queueId"`
	BotStartedAt   time.Time `json:"botStartedAt"`
}

func (e ConversationEscalated) EventName() string { return "routing.conversation.escalated" }

// =============================================================================
// Presence Domain Events
// =============================================================================

// AdvisorCameOnline is published when an advisor transitions from offline to
// online (after the settle delay, see the presence tracker).
type AdvisorCameOnline struct {
	BaseEvent
	AdvisorID uuid.UUID `json:"advisorId"`
}

func (e AdvisorCameOnline) EventName() string { return "presence.advisor.online" }

// AdvisorWentOffline is published when an advisor's last connection is gone
// and the debounce window has elapsed (or an explicit logout occurred).
type AdvisorWentOffline struct {
	BaseEvent
	AdvisorID uuid.UUID `json:"advisorId"`
	Immediate bool      `json:"immediate"`
}

func (e AdvisorWentOffline) EventName() string { return "presence.advisor.offline" }
