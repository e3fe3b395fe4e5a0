package routing

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	convrepo "chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/events"
	queuerepo "chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/platform/apperr"
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

func (b *recordingBus) assignments() []events.ConversationAssigned {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.ConversationAssigned
	for _, e := range b.events {
		if a, ok := e.(events.ConversationAssigned); ok {
			out = append(out, a)
		}
	}
	return out
}

type fakeConversations struct {
	mu           sync.Mutex
	byID         map[uuid.UUID]convrepo.Conversation
	systemEvents []string
	// assignErrs simulates lost claim races for specific conversations.
	assignErrs map[uuid.UUID]error
}

func newFakeConversations(convs ...convrepo.Conversation) *fakeConversations {
	f := &fakeConversations{byID: make(map[uuid.UUID]convrepo.Conversation)}
	for _, c := range convs {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeConversations) List(context.Context, convrepo.ListParams) ([]convrepo.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) GetByID(_ context.Context, id uuid.UUID) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return convrepo.Conversation{}, apperr.NotFound("conversation not found")
	}
	return c, nil
}

func (f *fakeConversations) Create(context.Context, convrepo.CreateParams) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, nil
}

func (f *fakeConversations) FindOpenByPhone(context.Context, string) (*convrepo.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) Assign(_ context.Context, id, advisorID uuid.UUID) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.assignErrs[id]; err != nil {
		return convrepo.Conversation{}, err
	}
	c, ok := f.byID[id]
	if !ok {
		return convrepo.Conversation{}, apperr.NotFound("conversation not found")
	}
	if c.AssignedTo != nil || c.Status != convrepo.StatusActive {
		return convrepo.Conversation{}, apperr.Conflict("conversation already claimed or not active")
	}
	c.AssignedTo = &advisorID
	f.byID[id] = c
	return c, nil
}

func (f *fakeConversations) ReleaseActiveAssignments(_ context.Context, advisorID uuid.UUID) ([]convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var released []convrepo.Conversation
	for id, c := range f.byID {
		if c.AssignedTo != nil && *c.AssignedTo == advisorID && c.Status == convrepo.StatusActive {
			c.AssignedTo = nil
			f.byID[id] = c
			released = append(released, c)
		}
	}
	return released, nil
}

func (f *fakeConversations) Release(_ context.Context, id, _ uuid.UUID) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID[id]
	c.AssignedTo = nil
	f.byID[id] = c
	return c, nil
}

func (f *fakeConversations) Accept(_ context.Context, id, _ uuid.UUID) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID[id]
	c.Status = convrepo.StatusAttending
	f.byID[id] = c
	return c, nil
}

func (f *fakeConversations) Close(_ context.Context, id uuid.UUID) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID[id]
	c.Status = convrepo.StatusClosed
	f.byID[id] = c
	return c, nil
}

func (f *fakeConversations) Escalate(_ context.Context, id, queueID uuid.UUID) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID[id]
	c.BotFlowID = nil
	c.BotStartedAt = nil
	c.QueueID = &queueID
	now := time.Now()
	c.QueuedAt = &now
	f.byID[id] = c
	return c, nil
}

func (f *fakeConversations) ListUnclaimedByQueue(_ context.Context, queueID uuid.UUID) ([]convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []convrepo.Conversation
	for _, c := range f.byID {
		if c.Unclaimed() && *c.QueueID == queueID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QueuedAt.Before(*out[j].QueuedAt)
	})
	return out, nil
}

func (f *fakeConversations) ListBotActive(context.Context) ([]convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []convrepo.Conversation
	for _, c := range f.byID {
		if c.Status == convrepo.StatusActive && c.BotFlowID != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversations) CountOpenByAdvisor(_ context.Context, advisorIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uuid.UUID]int, len(advisorIDs))
	for _, id := range advisorIDs {
		counts[id] = 0
	}
	for _, c := range f.byID {
		if c.AssignedTo == nil || c.Status == convrepo.StatusClosed {
			continue
		}
		if _, tracked := counts[*c.AssignedTo]; tracked {
			counts[*c.AssignedTo]++
		}
	}
	return counts, nil
}

func (f *fakeConversations) CreateSystemEvent(_ context.Context, conversationID uuid.UUID, kind, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemEvents = append(f.systemEvents, kind+":"+conversationID.String())
	return nil
}

func (f *fakeConversations) assignedTo(t *testing.T, id uuid.UUID) *uuid.UUID {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		t.Fatalf("conversation %s missing from fake store", id)
	}
	return c.AssignedTo
}

type fakeQueues struct {
	queues map[uuid.UUID]queuerepo.Queue
}

func newFakeQueues(queues ...queuerepo.Queue) *fakeQueues {
	f := &fakeQueues{queues: make(map[uuid.UUID]queuerepo.Queue)}
	for _, q := range queues {
		f.queues[q.ID] = q
	}
	return f
}

func (f *fakeQueues) GetAll(context.Context) ([]queuerepo.Queue, error) {
	var out []queuerepo.Queue
	for _, q := range f.queues {
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeQueues) GetByID(_ context.Context, id uuid.UUID) (queuerepo.Queue, error) {
	q, ok := f.queues[id]
	if !ok {
		return queuerepo.Queue{}, apperr.NotFound("queue not found")
	}
	return q, nil
}

func (f *fakeQueues) ListForAdvisor(_ context.Context, advisorID uuid.UUID) ([]queuerepo.Queue, error) {
	var out []queuerepo.Queue
	for _, q := range f.queues {
		if q.HasAdvisor(advisorID) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQueues) AddMember(context.Context, uuid.UUID, uuid.UUID, bool) error { return nil }

func (f *fakeQueues) RemoveMember(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type fakePresence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
}

func newFakePresence(online ...uuid.UUID) *fakePresence {
	f := &fakePresence{online: make(map[uuid.UUID]bool)}
	for _, id := range online {
		f.online[id] = true
	}
	return f
}

func (f *fakePresence) IsOnline(userID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func queueOf(mode queuerepo.DistributionMode, advisors ...uuid.UUID) queuerepo.Queue {
	q := queuerepo.Queue{ID: uuid.New(), Name: "support", DistributionMode: mode}
	for i, id := range advisors {
		q.Members = append(q.Members, queuerepo.Member{AdvisorID: id, Position: i})
	}
	return q
}

func queuedConversation(queueID uuid.UUID, queuedAt time.Time) convrepo.Conversation {
	return convrepo.Conversation{
		ID:       uuid.New(),
		Phone:    "+34600111222",
		Status:   convrepo.StatusActive,
		QueueID:  &queueID,
		QueuedAt: &queuedAt,
	}
}

func newTestService(convs *fakeConversations, queues *fakeQueues, presence *fakePresence) (*Service, *recordingBus) {
	bus := &recordingBus{}
	svc := NewService(convs, queues, presence, NewMemoryCursor(), bus, logger.New("test"))
	return svc, bus
}

func TestOnChatQueuedAssignsToOnlineAdvisor(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)
	conv := queuedConversation(queue.ID, time.Now())

	convs := newFakeConversations(conv)
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	if err := svc.OnChatQueued(context.Background(), conv.ID); err != nil {
		t.Fatalf("OnChatQueued: %v", err)
	}

	got := convs.assignedTo(t, conv.ID)
	if got == nil || *got != advisor {
		t.Fatalf("assigned_to = %v, want %s", got, advisor)
	}
	published := bus.assignments()
	if len(published) != 1 {
		t.Fatalf("published %d assignment events, want 1", len(published))
	}
	if published[0].AdvisorID != advisor || published[0].ConversationID != conv.ID {
		t.Fatalf("assignment event %+v does not match claim", published[0])
	}
	if len(convs.systemEvents) != 1 {
		t.Fatalf("recorded %d system events, want 1", len(convs.systemEvents))
	}
}

func TestOnChatQueuedSkipsIneligibleConversations(t *testing.T) {
	advisor := uuid.New()
	other := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)

	flow := "welcome-flow"
	claimed := queuedConversation(queue.ID, time.Now())
	claimed.AssignedTo = &other
	botOwned := queuedConversation(queue.ID, time.Now())
	botOwned.BotFlowID = &flow
	attending := queuedConversation(queue.ID, time.Now())
	attending.Status = convrepo.StatusAttending
	unqueued := queuedConversation(queue.ID, time.Now())
	unqueued.QueueID = nil

	convs := newFakeConversations(claimed, botOwned, attending, unqueued)
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	for _, conv := range []convrepo.Conversation{claimed, botOwned, attending, unqueued} {
		if err := svc.OnChatQueued(context.Background(), conv.ID); err != nil {
			t.Fatalf("OnChatQueued(%s): %v", conv.ID, err)
		}
	}

	if got := bus.assignments(); len(got) != 0 {
		t.Fatalf("published %d assignment events, want 0", len(got))
	}
	if got := convs.assignedTo(t, botOwned.ID); got != nil {
		t.Fatalf("bot-owned conversation was claimed by %s", got)
	}
}

func TestOnChatQueuedManualQueueNeverAssigns(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeManual, advisor)
	conv := queuedConversation(queue.ID, time.Now())

	convs := newFakeConversations(conv)
	svc, _ := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	if err := svc.OnChatQueued(context.Background(), conv.ID); err != nil {
		t.Fatalf("OnChatQueued: %v", err)
	}
	if got := convs.assignedTo(t, conv.ID); got != nil {
		t.Fatalf("manual queue conversation claimed by %s", got)
	}
}

func TestOnChatQueuedExcludesSupervisorsAndOffline(t *testing.T) {
	supervisor := uuid.New()
	offline := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, offline)
	queue.Members = append(queue.Members, queuerepo.Member{AdvisorID: supervisor, IsSupervisor: true, Position: 1})
	conv := queuedConversation(queue.ID, time.Now())

	convs := newFakeConversations(conv)
	// The supervisor is online, the regular member is not.
	svc, _ := newTestService(convs, newFakeQueues(queue), newFakePresence(supervisor))

	if err := svc.OnChatQueued(context.Background(), conv.ID); err != nil {
		t.Fatalf("OnChatQueued: %v", err)
	}
	if got := convs.assignedTo(t, conv.ID); got != nil {
		t.Fatalf("conversation claimed by %s, want unassigned", got)
	}
}

func TestOnChatQueuedLostClaimRaceIsNotAnError(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)
	conv := queuedConversation(queue.ID, time.Now())

	convs := newFakeConversations(conv)
	// A concurrent trigger wins the claim between the eligibility read and
	// the conditional write.
	convs.assignErrs = map[uuid.UUID]error{
		conv.ID: apperr.Conflict("conversation already claimed or not active"),
	}
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	if err := svc.OnChatQueued(context.Background(), conv.ID); err != nil {
		t.Fatalf("OnChatQueued after lost race: %v", err)
	}
	if got := bus.assignments(); len(got) != 0 {
		t.Fatalf("published %d assignment events after lost race, want 0", len(got))
	}
}

func TestRedistributeQueueContinuesAfterLostRace(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)
	base := time.Now()
	raced := queuedConversation(queue.ID, base.Add(-2*time.Minute))
	clean := queuedConversation(queue.ID, base.Add(-1*time.Minute))

	convs := newFakeConversations(raced, clean)
	convs.assignErrs = map[uuid.UUID]error{
		raced.ID: apperr.Conflict("conversation already claimed or not active"),
	}
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	placed, err := svc.RedistributeQueue(context.Background(), queue.ID)
	if err != nil {
		t.Fatalf("RedistributeQueue: %v", err)
	}
	// The raced item counts as placed so the walk keeps going.
	if placed != 2 {
		t.Fatalf("placed %d, want 2", placed)
	}
	published := bus.assignments()
	if len(published) != 1 || published[0].ConversationID != clean.ID {
		t.Fatalf("expected exactly the clean conversation assigned, got %d events", len(published))
	}
}

func TestRedistributeQueueDrainsBacklogOldestFirst(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)
	base := time.Now()
	oldest := queuedConversation(queue.ID, base.Add(-3*time.Minute))
	middle := queuedConversation(queue.ID, base.Add(-2*time.Minute))
	newest := queuedConversation(queue.ID, base.Add(-1*time.Minute))

	convs := newFakeConversations(oldest, middle, newest)
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	placed, err := svc.RedistributeQueue(context.Background(), queue.ID)
	if err != nil {
		t.Fatalf("RedistributeQueue: %v", err)
	}
	if placed != 3 {
		t.Fatalf("placed %d conversations, want 3", placed)
	}

	published := bus.assignments()
	if len(published) != 3 {
		t.Fatalf("published %d assignment events, want 3", len(published))
	}
	wantOrder := []uuid.UUID{oldest.ID, middle.ID, newest.ID}
	for i, want := range wantOrder {
		if published[i].ConversationID != want {
			t.Fatalf("assignment %d went to conversation %s, want %s", i, published[i].ConversationID, want)
		}
		if published[i].AdvisorID != advisor {
			t.Fatalf("assignment %d went to advisor %s, want %s", i, published[i].AdvisorID, advisor)
		}
	}
}

func TestRedistributeQueueLeastBusyRecomputesLoadPerItem(t *testing.T) {
	busy := uuid.New()
	idle := uuid.New()
	queue := queueOf(queuerepo.ModeLeastBusy, busy, idle)
	base := time.Now()

	// The busy advisor starts with one attending conversation.
	working := queuedConversation(queue.ID, base.Add(-time.Hour))
	working.Status = convrepo.StatusAttending
	working.AssignedTo = &busy

	first := queuedConversation(queue.ID, base.Add(-2*time.Minute))
	second := queuedConversation(queue.ID, base.Add(-1*time.Minute))

	convs := newFakeConversations(working, first, second)
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(busy, idle))

	placed, err := svc.RedistributeQueue(context.Background(), queue.ID)
	if err != nil {
		t.Fatalf("RedistributeQueue: %v", err)
	}
	if placed != 2 {
		t.Fatalf("placed %d conversations, want 2", placed)
	}

	published := bus.assignments()
	// First pick: idle (0) beats busy (1). Second pick: both at 1, the tie
	// goes to roster order, so busy gets it. Work ends up balanced.
	if published[0].AdvisorID != idle {
		t.Fatalf("first assignment went to %s, want idle advisor %s", published[0].AdvisorID, idle)
	}
	if published[1].AdvisorID != busy {
		t.Fatalf("second assignment went to %s, want busy advisor %s", published[1].AdvisorID, busy)
	}
}

func TestRedistributeQueueManualModeIsNoOp(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeManual, advisor)
	conv := queuedConversation(queue.ID, time.Now())

	convs := newFakeConversations(conv)
	svc, _ := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	placed, err := svc.RedistributeQueue(context.Background(), queue.ID)
	if err != nil {
		t.Fatalf("RedistributeQueue: %v", err)
	}
	if placed != 0 {
		t.Fatalf("placed %d conversations in a manual queue, want 0", placed)
	}
}

func TestOnAdvisorOnlineDrainsAdvisorQueues(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)
	base := time.Now()
	convs := newFakeConversations(
		queuedConversation(queue.ID, base.Add(-3*time.Minute)),
		queuedConversation(queue.ID, base.Add(-2*time.Minute)),
		queuedConversation(queue.ID, base.Add(-1*time.Minute)),
	)
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(advisor))

	if err := svc.OnAdvisorOnline(context.Background(), advisor); err != nil {
		t.Fatalf("OnAdvisorOnline: %v", err)
	}
	if got := bus.assignments(); len(got) != 3 {
		t.Fatalf("published %d assignment events, want the whole backlog of 3", len(got))
	}
}

func TestReturnUnclaimedWorkReleasesOnlyActiveClaims(t *testing.T) {
	leaving := uuid.New()
	remaining := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, leaving, remaining)
	base := time.Now()

	claimed := queuedConversation(queue.ID, base.Add(-2*time.Minute))
	claimed.AssignedTo = &leaving
	attending := queuedConversation(queue.ID, base.Add(-time.Hour))
	attending.Status = convrepo.StatusAttending
	attending.AssignedTo = &leaving

	convs := newFakeConversations(claimed, attending)
	// The leaving advisor is already offline when the release runs.
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence(remaining))

	if err := svc.ReturnUnclaimedWork(context.Background(), leaving); err != nil {
		t.Fatalf("ReturnUnclaimedWork: %v", err)
	}

	if got := convs.assignedTo(t, attending.ID); got == nil || *got != leaving {
		t.Fatal("attending conversation must stay with the original advisor")
	}
	if got := convs.assignedTo(t, claimed.ID); got == nil || *got != remaining {
		t.Fatalf("released conversation assigned to %v, want redistribution to %s", got, remaining)
	}

	var sawRelease bool
	for _, e := range bus.events {
		if _, ok := e.(events.ConversationReleased); ok {
			sawRelease = true
		}
	}
	if !sawRelease {
		t.Fatal("expected a ConversationReleased event")
	}
}

func TestReturnUnclaimedWorkNoClaimsIsNoOp(t *testing.T) {
	advisor := uuid.New()
	queue := queueOf(queuerepo.ModeRoundRobin, advisor)
	convs := newFakeConversations()
	svc, bus := newTestService(convs, newFakeQueues(queue), newFakePresence())

	if err := svc.ReturnUnclaimedWork(context.Background(), advisor); err != nil {
		t.Fatalf("ReturnUnclaimedWork: %v", err)
	}
	if len(bus.events) != 0 {
		t.Fatalf("published %d events, want 0", len(bus.events))
	}
}
