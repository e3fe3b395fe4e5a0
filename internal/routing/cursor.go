package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CursorStore holds each queue's round-robin rotation point.
type CursorStore interface {
	// Advance returns the cursor's position before the call and moves it
	// forward by one.
	Advance(ctx context.Context, queueID uuid.UUID) (uint64, error)
}

// RedisCursor keeps rotation state in Redis so the cursor survives restarts
// and stays consistent between the API process and the sweeper process.
type RedisCursor struct {
	client *redis.Client
}

// NewRedisCursor creates a Redis-backed cursor store.
func NewRedisCursor(client *redis.Client) *RedisCursor {
	return &RedisCursor{client: client}
}

func (c *RedisCursor) Advance(ctx context.Context, queueID uuid.UUID) (uint64, error) {
	next, err := c.client.Incr(ctx, cursorKey(queueID)).Result()
	if err != nil {
		return 0, fmt.Errorf("advance round-robin cursor: %w", err)
	}
	return uint64(next - 1), nil
}

func cursorKey(queueID uuid.UUID) string {
	return "routing:cursor:" + queueID.String()
}

// MemoryCursor is a process-local cursor store, used when Redis is not
// configured and in tests.
type MemoryCursor struct {
	mu      sync.Mutex
	cursors map[uuid.UUID]uint64
}

// NewMemoryCursor creates an in-memory cursor store.
func NewMemoryCursor() *MemoryCursor {
	return &MemoryCursor{cursors: make(map[uuid.UUID]uint64)}
}

func (c *MemoryCursor) Advance(_ context.Context, queueID uuid.UUID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	position := c.cursors[queueID]
	c.cursors[queueID] = position + 1
	return position, nil
}
