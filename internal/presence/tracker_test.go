package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chatdesk_backend/internal/events"
	"chatdesk_backend/platform/clock"
	"chatdesk_backend/platform/logger"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.PublishSync(context.Background(), event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

func newTestTracker(t *testing.T) (*Tracker, *recordingBus, *clock.Fake) {
	t.Helper()
	bus := &recordingBus{}
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker := New(bus, clk, logger.New("development"), Options{})
	return tracker, bus, clk
}

func TestMarkOnlineMakesAdvisorReachable(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	advisor := uuid.New()

	if tracker.IsOnline(advisor) {
		t.Fatal("advisor should start offline")
	}

	tracker.MarkOnline(advisor, "sess-1")

	if !tracker.IsOnline(advisor) {
		t.Fatal("advisor should be online after MarkOnline")
	}

	snapshot, ok := tracker.Snapshot(advisor)
	if !ok {
		t.Fatal("expected a presence record")
	}
	if snapshot.ActiveConnections != 1 {
		t.Fatalf("ActiveConnections = %d, want 1", snapshot.ActiveConnections)
	}
	if snapshot.ConnectedAt == nil {
		t.Fatal("ConnectedAt should be set while online")
	}
}

func TestAdvisorOnlineSignalIsDeferred(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")

	if len(bus.names()) != 0 {
		t.Fatalf("no events expected before the settle delay, got %v", bus.names())
	}

	clk.Advance(DefaultSettleDelay)

	names := bus.names()
	if len(names) != 1 || names[0] != "presence.advisor.online" {
		t.Fatalf("events = %v, want exactly one advisor-online", names)
	}
}

func TestSecondSessionDoesNotRepeatOnlineSignal(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	tracker.MarkOnline(advisor, "sess-2")
	clk.Advance(time.Minute)

	names := bus.names()
	if len(names) != 1 {
		t.Fatalf("events = %v, want a single advisor-online for two sessions", names)
	}

	snapshot, _ := tracker.Snapshot(advisor)
	if snapshot.ActiveConnections != 2 {
		t.Fatalf("ActiveConnections = %d, want 2", snapshot.ActiveConnections)
	}
}

func TestDebounceAbsorbsReconnect(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	clk.Advance(DefaultSettleDelay)

	tracker.MarkOffline(advisor, false)

	// Still inside the grace window.
	clk.Advance(2 * time.Second)
	if !tracker.IsOnline(advisor) {
		t.Fatal("advisor must stay online during the debounce window")
	}

	tracker.MarkOnline(advisor, "sess-2")
	clk.Advance(time.Minute)

	if !tracker.IsOnline(advisor) {
		t.Fatal("advisor should remain online after reconnect")
	}
	for _, name := range bus.names() {
		if name == "presence.advisor.offline" {
			t.Fatal("a reconnect within the window must not produce an offline event")
		}
	}
}

func TestDebounceExpiryTransitionsOffline(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	clk.Advance(DefaultSettleDelay)
	tracker.MarkOffline(advisor, false)

	clk.Advance(DefaultDebounce)

	if tracker.IsOnline(advisor) {
		t.Fatal("advisor should be offline after the debounce elapses")
	}

	var offline *events.AdvisorWentOffline
	bus.mu.Lock()
	for _, e := range bus.events {
		if evt, ok := e.(events.AdvisorWentOffline); ok {
			offline = &evt
		}
	}
	bus.mu.Unlock()

	if offline == nil {
		t.Fatal("expected an advisor-offline event")
	}
	if offline.Immediate {
		t.Fatal("debounced transition must not be flagged immediate")
	}
}

func TestImmediateLogoutBypassesDebounce(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	clk.Advance(DefaultSettleDelay)

	tracker.MarkOffline(advisor, true)

	if tracker.IsOnline(advisor) {
		t.Fatal("explicit logout must transition offline synchronously")
	}

	bus.mu.Lock()
	last := bus.events[len(bus.events)-1]
	bus.mu.Unlock()

	offline, ok := last.(events.AdvisorWentOffline)
	if !ok || !offline.Immediate {
		t.Fatalf("last event = %#v, want immediate advisor-offline", last)
	}
}

func TestRepeatedLogoutDoesNotRebroadcastOffline(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	clk.Advance(DefaultSettleDelay)
	tracker.MarkOffline(advisor, true)

	offlineEvents := func() int {
		n := 0
		for _, name := range bus.names() {
			if name == (events.AdvisorWentOffline{}.EventName()) {
				n++
			}
		}
		return n
	}
	if got := offlineEvents(); got != 1 {
		t.Fatalf("offline events after logout = %d, want 1", got)
	}

	tracker.MarkOffline(advisor, true)

	if got := offlineEvents(); got != 1 {
		t.Fatalf("offline events after repeated logout = %d, want 1", got)
	}
}

func TestMultiSessionOfflineWaitsForLastConnection(t *testing.T) {
	tracker, _, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	tracker.MarkOnline(advisor, "sess-2")
	clk.Advance(DefaultSettleDelay)

	tracker.MarkOffline(advisor, false)
	clk.Advance(time.Minute)

	if !tracker.IsOnline(advisor) {
		t.Fatal("advisor with a remaining connection must stay online")
	}

	tracker.MarkOffline(advisor, false)
	clk.Advance(DefaultDebounce)

	if tracker.IsOnline(advisor) {
		t.Fatal("advisor should go offline once the last connection drops")
	}
}

func TestMarkOfflineBySession(t *testing.T) {
	tracker, _, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	clk.Advance(DefaultSettleDelay)

	tracker.MarkOfflineBySession("sess-1")
	clk.Advance(DefaultDebounce)

	if tracker.IsOnline(advisor) {
		t.Fatal("advisor should be offline after their session disconnects")
	}

	// Unknown sessions are ignored.
	tracker.MarkOfflineBySession("sess-unknown")
}

func TestOnlineAdvisors(t *testing.T) {
	tracker, _, clk := newTestTracker(t)
	a := uuid.New()
	b := uuid.New()

	tracker.MarkOnline(a, "sess-a")
	tracker.MarkOnline(b, "sess-b")
	clk.Advance(DefaultSettleDelay)
	tracker.MarkOffline(b, true)

	online := tracker.OnlineAdvisors()
	if len(online) != 1 || online[0] != a {
		t.Fatalf("OnlineAdvisors = %v, want [%s]", online, a)
	}
}

func TestRemoveStaleDropsOldOfflineRecords(t *testing.T) {
	tracker, _, clk := newTestTracker(t)
	stale := uuid.New()
	fresh := uuid.New()

	tracker.MarkOnline(stale, "sess-stale")
	clk.Advance(DefaultSettleDelay)
	tracker.MarkOffline(stale, true)

	clk.Advance(DefaultStaleAge + time.Hour)

	tracker.MarkOnline(fresh, "sess-fresh")

	if removed := tracker.RemoveStale(); removed != 1 {
		t.Fatalf("RemoveStale = %d, want 1", removed)
	}
	if _, ok := tracker.Snapshot(stale); ok {
		t.Fatal("stale record should be gone")
	}
	if _, ok := tracker.Snapshot(fresh); !ok {
		t.Fatal("fresh record must survive the sweep")
	}
}

func TestStopCancelsPendingTimers(t *testing.T) {
	tracker, bus, clk := newTestTracker(t)
	advisor := uuid.New()

	tracker.MarkOnline(advisor, "sess-1")
	clk.Advance(DefaultSettleDelay)
	tracker.MarkOffline(advisor, false)

	tracker.Stop()
	clk.Advance(time.Minute)

	for _, name := range bus.names() {
		if name == "presence.advisor.offline" {
			t.Fatal("no offline event expected after Stop")
		}
	}
}
