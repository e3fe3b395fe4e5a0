// Package presence tracks which advisors are currently reachable.
//
// State is process-lifetime and rebuilt empty on restart. An advisor is
// online while at least one connection is open; losing the last connection
// starts a debounce window so a page refresh does not look like a logout.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatdesk_backend/internal/events"
	"chatdesk_backend/platform/clock"
	"chatdesk_backend/platform/logger"
)

const (
	// DefaultDebounce is the grace window after the last disconnect before
	// the advisor is treated as offline.
	DefaultDebounce = 5 * time.Second
	// DefaultSettleDelay is how long the advisor-online signal is deferred
	// after an offline-to-online transition, letting surrounding state settle.
	DefaultSettleDelay = 1 * time.Second
	// DefaultStaleAge is how long a continuously offline record is kept
	// before the cleanup sweep drops it.
	DefaultStaleAge = 24 * time.Hour
)

// Record is a read-only snapshot of one advisor's presence state.
type Record struct {
	UserID            uuid.UUID
	IsOnline          bool
	LastSeen          time.Time
	ActiveConnections int
	ConnectedAt       *time.Time
	SessionID         string
}

// Options tune the tracker's timing. Zero values fall back to defaults.
type Options struct {
	Debounce    time.Duration
	SettleDelay time.Duration
	StaleAge    time.Duration
}

type entry struct {
	userID        uuid.UUID
	online        bool
	lastSeen      time.Time
	connections   int
	connectedAt   *time.Time
	sessionID     string
	debounceTimer clock.Timer
	settleTimer   clock.Timer
}

// Tracker is the authoritative in-memory presence state. Construct one at
// startup and inject it; there is no package-level instance.
type Tracker struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*entry
	sessions map[string]uuid.UUID

	bus   events.Bus
	clock clock.Clock
	log   *logger.Logger
	opts  Options

	stopped bool
}

// New creates a presence tracker publishing transitions on the given bus.
func New(bus events.Bus, clk clock.Clock, log *logger.Logger, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.StaleAge <= 0 {
		opts.StaleAge = DefaultStaleAge
	}

	return &Tracker{
		entries:  make(map[uuid.UUID]*entry),
		sessions: make(map[string]uuid.UUID),
		bus:      bus,
		clock:    clk,
		log:      log,
		opts:     opts,
	}
}

// MarkOnline records a new connection for the advisor. Safe to call from
// multiple concurrent sessions of the same advisor. A reconnect during the
// debounce window cancels the pending offline transition; a genuine
// offline-to-online transition schedules the deferred advisor-online signal.
func (t *Tracker) MarkOnline(userID uuid.UUID, sessionID string) {
	t.mu.Lock()

	if t.stopped {
		t.mu.Unlock()
		return
	}

	e, ok := t.entries[userID]
	if !ok {
		e = &entry{userID: userID}
		t.entries[userID] = e
	}

	wasOffline := !e.online
	now := t.clock.Now()

	e.connections++
	e.online = true
	e.lastSeen = now
	e.sessionID = sessionID
	if e.connectedAt == nil {
		connectedAt := now
		e.connectedAt = &connectedAt
	}
	if sessionID != "" {
		t.sessions[sessionID] = userID
	}

	// A pending debounce means the advisor never really left.
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}

	connections := e.connections
	if wasOffline {
		if e.settleTimer != nil {
			e.settleTimer.Stop()
		}
		e.settleTimer = t.clock.AfterFunc(t.opts.SettleDelay, func() {
			t.fireAdvisorOnline(userID)
		})
	}
	t.mu.Unlock()

	t.log.PresenceTransition(userID.String(), "online", connections)
}

// MarkOffline records a dropped connection. When the last connection is gone,
// immediate=true (explicit logout) transitions to offline synchronously;
// otherwise the debounce timer is armed and a reconnect within the window
// keeps the advisor online.
func (t *Tracker) MarkOffline(userID uuid.UUID, immediate bool) {
	t.mu.Lock()

	e, ok := t.entries[userID]
	if !ok || t.stopped {
		t.mu.Unlock()
		return
	}

	if e.connections > 0 {
		e.connections--
	}
	e.lastSeen = t.clock.Now()

	if e.connections > 0 {
		remaining := e.connections
		t.mu.Unlock()
		t.log.PresenceTransition(userID.String(), "online", remaining)
		return
	}

	if immediate {
		// Already-offline advisors must not re-broadcast the transition.
		if !e.online {
			t.mu.Unlock()
			return
		}
		t.transitionOffline(e)
		t.mu.Unlock()
		t.publishOffline(userID, true)
		return
	}

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceTimer = t.clock.AfterFunc(t.opts.Debounce, func() {
		t.debounceExpired(userID)
	})
	t.mu.Unlock()
}

// MarkOfflineBySession resolves a connection's session to its advisor and
// records the disconnect (never immediate: transport drops get the debounce).
func (t *Tracker) MarkOfflineBySession(sessionID string) {
	t.mu.Lock()
	userID, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	t.MarkOffline(userID, false)
}

// IsOnline reports the advisor's current reachability. Synchronous and
// non-blocking; during the debounce window it still reads true.
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[userID]
	return ok && e.online
}

// OnlineAdvisors returns the set of currently reachable advisors.
func (t *Tracker) OnlineAdvisors() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]uuid.UUID, 0, len(t.entries))
	for id, e := range t.entries {
		if e.online {
			result = append(result, id)
		}
	}
	return result
}

// Snapshot returns the advisor's presence record, if one exists.
func (t *Tracker) Snapshot(userID uuid.UUID) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[userID]
	if !ok {
		return Record{}, false
	}
	return Record{
		UserID:            e.userID,
		IsOnline:          e.online,
		LastSeen:          e.lastSeen,
		ActiveConnections: e.connections,
		ConnectedAt:       e.connectedAt,
		SessionID:         e.sessionID,
	}, true
}

// RemoveStale drops records that have been continuously offline longer than
// the configured stale age. Returns how many were removed.
func (t *Tracker) RemoveStale() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-t.opts.StaleAge)
	removed := 0
	for id, e := range t.entries {
		if e.online || e.lastSeen.After(cutoff) {
			continue
		}
		delete(t.entries, id)
		removed++
	}
	for sessionID, userID := range t.sessions {
		if _, ok := t.entries[userID]; !ok {
			delete(t.sessions, sessionID)
		}
	}
	return removed
}

// Stop cancels all pending timers. Called on process shutdown; the tracker
// accepts no further transitions afterwards.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for _, e := range t.entries {
		if e.debounceTimer != nil {
			e.debounceTimer.Stop()
			e.debounceTimer = nil
		}
		if e.settleTimer != nil {
			e.settleTimer.Stop()
			e.settleTimer = nil
		}
	}
}

func (t *Tracker) debounceExpired(userID uuid.UUID) {
	t.mu.Lock()

	e, ok := t.entries[userID]
	if !ok || t.stopped || !e.online || e.connections > 0 {
		t.mu.Unlock()
		return
	}
	e.debounceTimer = nil
	t.transitionOffline(e)
	t.mu.Unlock()

	t.publishOffline(userID, false)
}

// transitionOffline flips the entry to offline. Caller holds the lock.
func (t *Tracker) transitionOffline(e *entry) {
	e.online = false
	e.connectedAt = nil
	e.sessionID = ""
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	for sessionID, userID := range t.sessions {
		if userID == e.userID {
			delete(t.sessions, sessionID)
		}
	}
}

func (t *Tracker) fireAdvisorOnline(userID uuid.UUID) {
	// The advisor may already be gone again; the deferred signal only
	// fires for advisors still reachable.
	if !t.IsOnline(userID) {
		return
	}

	if err := t.bus.PublishSync(context.Background(), events.AdvisorCameOnline{
		BaseEvent: events.NewBaseEvent(),
		AdvisorID: userID,
	}); err != nil {
		t.log.Error("advisor-online handlers failed", "advisor_id", userID, "error", err)
	}
}

func (t *Tracker) publishOffline(userID uuid.UUID, immediate bool) {
	t.log.PresenceTransition(userID.String(), "offline", 0)

	if err := t.bus.PublishSync(context.Background(), events.AdvisorWentOffline{
		BaseEvent: events.NewBaseEvent(),
		AdvisorID: userID,
		Immediate: immediate,
	}); err != nil {
		t.log.Error("advisor-offline handlers failed", "advisor_id", userID, "error", err)
	}
}
