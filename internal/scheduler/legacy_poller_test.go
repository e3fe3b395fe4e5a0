package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	convrepo "chatdesk_backend/internal/conversations/repository"
	queuerepo "chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/internal/routing"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
)

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
	online map[uuid.UUID]bool
}

func (f fakePresence) IsOnline(userID uuid.UUID) bool { return f.online[userID] }

func TestPollAssignsLeftoverBacklog(t *testing.T) {
	advisor := uuid.New()
	queue := queuerepo.Queue{
		ID:               uuid.New(),
		Name:             "support",
		DistributionMode: queuerepo.ModeRoundRobin,
		Members:          []queuerepo.Member{{AdvisorID: advisor}},
	}

	queuedAt := time.Now().Add(-time.Minute)
	leftover := convrepo.Conversation{
		ID:       uuid.New(),
		Status:   convrepo.StatusActive,
		QueueID:  &queue.ID,
		QueuedAt: &queuedAt,
	}

	convs := newFakeConversations(leftover)
	bus := &recordingBus{}
	router := routing.NewService(convs, newFakeQueues(queue),
		fakePresence{online: map[uuid.UUID]bool{advisor: true}},
		routing.NewMemoryCursor(), bus, logger.New("test"))

	poller := NewLegacyPoller(newFakeQueues(queue), router, logger.New("test"), time.Second)
	poller.poll(context.Background())

	got, err := convs.GetByID(context.Background(), leftover.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AssignedTo == nil || *got.AssignedTo != advisor {
		t.Fatalf("assigned_to = %v, want %s", got.AssignedTo, advisor)
	}
}

func TestPollSkipsOverlappingPass(t *testing.T) {
	advisor := uuid.New()
	queue := queuerepo.Queue{
		ID:               uuid.New(),
		DistributionMode: queuerepo.ModeRoundRobin,
		Members:          []queuerepo.Member{{AdvisorID: advisor}},
	}

	queuedAt := time.Now().Add(-time.Minute)
	leftover := convrepo.Conversation{
		ID:       uuid.New(),
		Status:   convrepo.StatusActive,
		QueueID:  &queue.ID,
		QueuedAt: &queuedAt,
	}

	convs := newFakeConversations(leftover)
	bus := &recordingBus{}
	router := routing.NewService(convs, newFakeQueues(queue),
		fakePresence{online: map[uuid.UUID]bool{advisor: true}},
		routing.NewMemoryCursor(), bus, logger.New("test"))

	poller := NewLegacyPoller(newFakeQueues(queue), router, logger.New("test"), time.Second)

	// A pass is already in flight; the tick must do nothing.
	poller.running.Store(true)
	poller.poll(context.Background())

	got, err := convs.GetByID(context.Background(), leftover.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AssignedTo != nil {
		t.Fatal("overlapping pass must not touch the backlog")
	}

	// The in-flight pass finishing re-enables the next tick.
	poller.running.Store(false)
	poller.poll(context.Background())

	got, err = convs.GetByID(context.Background(), leftover.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AssignedTo == nil {
		t.Fatal("next pass after the guard clears must assign the backlog")
	}
}

func TestChatQueuedTaskRoundTrip(t *testing.T) {
	payload := ChatQueuedPayload{
		ConversationID: uuid.NewString(),
		QueueID:        uuid.NewString(),
	}

	task, err := NewChatQueuedTask(payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TaskChatQueued {
		t.Fatalf("task type = %s, want %s", task.Type(), TaskChatQueued)
	}

	parsed, err := ParseChatQueuedPayload(task)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != payload {
		t.Fatalf("parsed %+v, want %+v", parsed, payload)
	}
}
