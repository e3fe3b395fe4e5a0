package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	convrepo "chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/events"
	"chatdesk_backend/internal/scheduler"
	"chatdesk_backend/platform/apperr"
	"chatdesk_backend/platform/logger"
)

type fakeConversations struct {
	mu      sync.Mutex
	byPhone map[string]convrepo.Conversation
	created []convrepo.CreateParams
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{byPhone: make(map[string]convrepo.Conversation)}
}

func (f *fakeConversations) List(context.Context, convrepo.ListParams) ([]convrepo.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) GetByID(context.Context, uuid.UUID) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, apperr.NotFound("conversation not found")
}

func (f *fakeConversations) Create(_ context.Context, params convrepo.CreateParams) (convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	conv := convrepo.Conversation{
		ID:        uuid.New(),
		Phone:     params.Phone,
		Status:    convrepo.StatusActive,
		QueueID:   params.QueueID,
		BotFlowID: params.BotFlowID,
	}
	f.byPhone[params.Phone] = conv
	return conv, nil
}

func (f *fakeConversations) FindOpenByPhone(_ context.Context, phone string) (*convrepo.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.byPhone[phone]; ok {
		return &conv, nil
	}
	return nil, nil
}

func (f *fakeConversations) Assign(context.Context, uuid.UUID, uuid.UUID) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, nil
}

func (f *fakeConversations) ReleaseActiveAssignments(context.Context, uuid.UUID) ([]convrepo.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) Release(context.Context, uuid.UUID, uuid.UUID) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, nil
}

func (f *fakeConversations) Accept(context.Context, uuid.UUID, uuid.UUID) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, nil
}

func (f *fakeConversations) Close(context.Context, uuid.UUID) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, nil
}

func (f *fakeConversations) Escalate(context.Context, uuid.UUID, uuid.UUID) (convrepo.Conversation, error) {
	return convrepo.Conversation{}, nil
}

func (f *fakeConversations) ListUnclaimedByQueue(context.Context, uuid.UUID) ([]convrepo.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) ListBotActive(context.Context) ([]convrepo.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) CountOpenByAdvisor(context.Context, []uuid.UUID) (map[uuid.UUID]int, error) {
	return map[uuid.UUID]int{}, nil
}

func (f *fakeConversations) CreateSystemEvent(context.Context, uuid.UUID, string, string) error {
	return nil
}

type fakeEnqueuer struct {
	payloads []scheduler.ChatQueuedPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueChatQueued(_ context.Context, payload scheduler.ChatQueuedPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) EmitNewMessage(_, _ uuid.UUID, message string) {
	r.messages = append(r.messages, message)
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event)           {}
func (nopBus) PublishSync(context.Context, events.Event) error { return nil }
func (nopBus) Subscribe(string, events.Handler)                {}

func TestIngestOpensConversationAndTriggersDistribution(t *testing.T) {
	convs := newFakeConversations()
	enq := &fakeEnqueuer{}
	queueID := uuid.New()
	svc := NewService(convs, enq, nil, nopBus{}, logger.New("test"))

	result, err := svc.IngestMessage(context.Background(), IngestMessageInput{
		Phone:   "600 111 222",
		Body:    "hola",
		QueueID: &queueID,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a new conversation")
	}
	if len(convs.created) != 1 {
		t.Fatalf("created %d conversations, want 1", len(convs.created))
	}
	if got := convs.created[0].Phone; got != "+34600111222" {
		t.Fatalf("stored phone %q, want normalized E.164", got)
	}
	if len(enq.payloads) != 1 || enq.payloads[0].QueueID != queueID.String() {
		t.Fatalf("enqueued %v, want one chat-queued trigger for the queue", enq.payloads)
	}
}

func TestIngestBotOwnedConversationIsNotDistributed(t *testing.T) {
	convs := newFakeConversations()
	enq := &fakeEnqueuer{}
	queueID := uuid.New()
	flow := "welcome"
	svc := NewService(convs, enq, nil, nopBus{}, logger.New("test"))

	_, err := svc.IngestMessage(context.Background(), IngestMessageInput{
		Phone:     "+34600111222",
		Body:      "hola",
		QueueID:   &queueID,
		BotFlowID: &flow,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(enq.payloads) != 0 {
		t.Fatal("bot-owned conversations must not trigger distribution")
	}
}

func TestIngestExistingConversationNotifiesAdvisor(t *testing.T) {
	convs := newFakeConversations()
	advisor := uuid.New()
	existing := convrepo.Conversation{
		ID:         uuid.New(),
		Phone:      "+34600111222",
		Status:     convrepo.StatusAttending,
		AssignedTo: &advisor,
	}
	convs.byPhone[existing.Phone] = existing

	notifier := &recordingNotifier{}
	svc := NewService(convs, &fakeEnqueuer{}, notifier, nopBus{}, logger.New("test"))

	result, err := svc.IngestMessage(context.Background(), IngestMessageInput{
		Phone: "+34600111222",
		Body:  "sigo esperando",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Created {
		t.Fatal("must reuse the open conversation")
	}
	if result.ConversationID != existing.ID {
		t.Fatalf("got conversation %s, want existing %s", result.ConversationID, existing.ID)
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != "sigo esperando" {
		t.Fatalf("notifier received %v", notifier.messages)
	}
}

func TestIngestRejectsUnparseablePhone(t *testing.T) {
	svc := NewService(newFakeConversations(), &fakeEnqueuer{}, nil, nopBus{}, logger.New("test"))

	_, err := svc.IngestMessage(context.Background(), IngestMessageInput{
		Phone: "not-a-number",
		Body:  "hola",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("got %v, want a validation error", err)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if HashKey(plaintext) != hash {
		t.Fatal("hash of the plaintext must match the stored hash")
	}
	if len(prefix) != 12 || plaintext[:12] != prefix {
		t.Fatalf("prefix %q does not match plaintext", prefix)
	}
}
