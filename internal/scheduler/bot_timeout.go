package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	botflowrepo "chatdesk_backend/internal/botflow/repository"
	convrepo "chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/events"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/clock"
	"chatdesk_backend/platform/logger"
)

const defaultBotSweepInterval = time.Minute

// BotHandoffSweeper periodically escalates conversations a bot has held too
// long. Per-flow policy comes from the botflow config store and is reloaded
// on every pass, so edits apply without a restart.
type BotHandoffSweeper struct {
	conversations convrepo.Repository
	configs       botflowrepo.Repository
	bus           events.Bus
	enqueuer      ChatQueuedEnqueuer
	clk           clock.Clock
	log           *logger.Logger
	interval      time.Duration
}

// NewBotHandoffSweeper creates the sweeper. Escalated conversations are
// handed to the distribution worker through the enqueuer; when it is nil the
// trigger goes over the in-process bus instead, which requires the routing
// module to live in the same process.
func NewBotHandoffSweeper(
	conversations convrepo.Repository,
	configs botflowrepo.Repository,
	bus events.Bus,
	enqueuer ChatQueuedEnqueuer,
	clk clock.Clock,
	log *logger.Logger,
	interval time.Duration,
) *BotHandoffSweeper {
	if interval <= 0 {
		interval = defaultBotSweepInterval
	}
	if clk == nil {
		clk = clock.New()
	}

	return &BotHandoffSweeper{
		conversations: conversations,
		configs:       configs,
		bus:           bus,
		enqueuer:      enqueuer,
		clk:           clk,
		log:           log,
		interval:      interval,
	}
}

func (s *BotHandoffSweeper) Run(ctx context.Context) {
	if s == nil || s.conversations == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep escalates every bot-held conversation whose flow timeout elapsed.
// Flows without a configured policy are skipped.
func (s *BotHandoffSweeper) sweep(ctx context.Context) {
	configs, err := s.configs.GetAll(ctx)
	if err != nil {
		s.log.Warn("bot handoff sweep skipped, config load failed", "error", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	held, err := s.conversations.ListBotActive(ctx)
	if err != nil {
		s.log.Warn("bot handoff sweep skipped, conversation load failed", "error", err)
		return
	}

	now := s.clk.Now()
	escalated := 0
	for _, conv := range held {
		if conv.BotFlowID == nil || conv.BotStartedAt == nil {
			continue
		}
		config, ok := configs[*conv.BotFlowID]
		if !ok {
			continue
		}

		timeout := time.Duration(config.TimeoutMinutes) * time.Minute
		if now.Sub(*conv.BotStartedAt) < timeout {
			continue
		}

		if s.escalate(ctx, conv, config) {
			escalated++
		}
	}

	if escalated > 0 {
		s.log.Info("bot handoff sweep escalated conversations", "escalated", escalated)
	}
}

// escalate hands one conversation from its bot to the fallback queue. A
// Conflict means another sweep already escalated it; that is not a failure.
func (s *BotHandoffSweeper) escalate(ctx context.Context, conv convrepo.Conversation, config botflowrepo.TimeoutConfig) bool {
	flowID := *conv.BotFlowID

	updated, err := s.conversations.Escalate(ctx, conv.ID, config.FallbackQueueID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return false
		}
		s.log.Error("bot handoff escalation failed",
			"conversation_id", conv.ID, "flow_id", flowID, "error", err)
		return false
	}

	if err := s.conversations.CreateSystemEvent(ctx, updated.ID, "bot_timeout",
		"Bot flow timed out, conversation escalated to a human queue"); err != nil {
		s.log.Error("system event insert failed", "conversation_id", updated.ID, "error", err)
	}

	s.bus.Publish(ctx, events.ConversationEscalated{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: updated.ID,
		FlowID:         flowID,
		QueueID:        config.FallbackQueueID,
		BotStartedAt:   *conv.BotStartedAt,
	})
	s.triggerDistribution(ctx, updated.ID, config.FallbackQueueID)

	return true
}

func (s *BotHandoffSweeper) triggerDistribution(ctx context.Context, conversationID, queueID uuid.UUID) {
	if s.enqueuer != nil {
		err := s.enqueuer.EnqueueChatQueued(ctx, ChatQueuedPayload{
			ConversationID: conversationID.String(),
			QueueID:        queueID.String(),
		})
		if err == nil {
			return
		}
		s.log.Error("chat-queued enqueue failed, falling back to bus", "error", err)
	}

	s.bus.Publish(ctx, events.ConversationQueued{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		QueueID:        queueID,
	})
}
