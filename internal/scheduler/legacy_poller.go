package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	queuerepo "chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/internal/routing"
	"chatdesk_backend/platform/logger"
)

const defaultLegacyPollInterval = 10 * time.Second

// LegacyPoller is the safety-net distributor: a periodic full scan of every
// queue's unclaimed backlog. The event-driven path normally assigns work
// first; the poller only catches conversations whose trigger was lost.
type LegacyPoller struct {
	queues   queuerepo.Repository
	router   *routing.Service
	log      *logger.Logger
	interval time.Duration
	running  atomic.Bool
}

func NewLegacyPoller(queues queuerepo.Repository, router *routing.Service, log *logger.Logger, interval time.Duration) *LegacyPoller {
	if interval <= 0 {
		interval = defaultLegacyPollInterval
	}

	return &LegacyPoller{
		queues:   queues,
		router:   router,
		log:      log,
		interval: interval,
	}
}

func (p *LegacyPoller) Run(ctx context.Context) {
	if p == nil || p.router == nil {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one full distribution pass. Overlapping passes are skipped: a
// slow pass must not stack concurrent scans of the same backlog.
func (p *LegacyPoller) poll(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Debug("legacy poll still running, tick skipped")
		return
	}
	defer p.running.Store(false)

	queues, err := p.queues.GetAll(ctx)
	if err != nil {
		p.log.Warn("legacy poll skipped, queue load failed", "error", err)
		return
	}

	placed := 0
	for _, queue := range queues {
		n, err := p.router.RedistributeQueue(ctx, queue.ID)
		if err != nil {
			p.log.Error("legacy poll failed for queue", "queue_id", queue.ID, "error", err)
			continue
		}
		placed += n
	}

	if placed > 0 {
		p.log.Info("legacy poll assigned leftover conversations", "placed", placed)
	}
}
