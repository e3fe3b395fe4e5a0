package scheduler

import (
	"context"
	"time"

	"chatdesk_backend/internal/presence"
	"chatdesk_backend/platform/logger"
)

const defaultPresenceCleanupInterval = time.Hour

// PresenceCleanup evicts presence records whose last activity is older than
// the tracker's stale age. Guards the in-memory map against leaked entries
// from connections that never signalled a close.
type PresenceCleanup struct {
	tracker  *presence.Tracker
	log      *logger.Logger
	interval time.Duration
}

func NewPresenceCleanup(tracker *presence.Tracker, log *logger.Logger, interval time.Duration) *PresenceCleanup {
	if interval <= 0 {
		interval = defaultPresenceCleanupInterval
	}

	return &PresenceCleanup{tracker: tracker, log: log, interval: interval}
}

func (c *PresenceCleanup) Run(ctx context.Context) {
	if c == nil || c.tracker == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.tracker.RemoveStale(); removed > 0 {
				c.log.Info("stale presence records removed", "removed", removed)
			}
		}
	}
}
