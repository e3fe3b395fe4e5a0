package sse

import (
	"testing"

	"github.com/google/uuid"

	"chatdesk_backend/platform/logger"
)

type nopPresence struct{}

func (nopPresence) MarkOnline(uuid.UUID, string) {}
func (nopPresence) MarkOfflineBySession(string)  {}

func newConnectedClient(s *Service, userID uuid.UUID) *client {
	cl := &client{userID: userID, sessionID: uuid.NewString(), events: make(chan Event, 32)}
	s.addClient(cl)
	return cl
}

func TestPublishReachesAllUserConnections(t *testing.T) {
	svc := New(nopPresence{}, logger.New("test"))
	userID := uuid.New()
	first := newConnectedClient(svc, userID)
	second := newConnectedClient(svc, userID)

	convID := uuid.New()
	svc.EmitConversationUpdate(userID, convID, nil)

	for i, cl := range []*client{first, second} {
		select {
		case event := <-cl.events:
			if event.Type != EventConversationUpdated || event.ConversationID != convID {
				t.Fatalf("connection %d got %+v", i, event)
			}
		default:
			t.Fatalf("connection %d received nothing", i)
		}
	}
}

func TestPresenceUpdateBroadcastsToEveryAdvisor(t *testing.T) {
	svc := New(nopPresence{}, logger.New("test"))
	first := newConnectedClient(svc, uuid.New())
	second := newConnectedClient(svc, uuid.New())

	colleague := uuid.New()
	svc.EmitAdvisorPresenceUpdate(colleague, true)

	for i, cl := range []*client{first, second} {
		select {
		case event := <-cl.events:
			if event.Type != EventAdvisorPresence || event.AdvisorID != colleague {
				t.Fatalf("connection %d got %+v", i, event)
			}
		default:
			t.Fatalf("connection %d received nothing", i)
		}
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	svc := New(nopPresence{}, logger.New("test"))
	userID := uuid.New()
	cl := newConnectedClient(svc, userID)

	for i := 0; i < cap(cl.events)+5; i++ {
		svc.EmitNewMessage(userID, uuid.New(), "hello")
	}

	if len(cl.events) != cap(cl.events) {
		t.Fatalf("buffered %d events, want the channel capacity %d", len(cl.events), cap(cl.events))
	}
}

func TestRemoveClientClosesChannel(t *testing.T) {
	svc := New(nopPresence{}, logger.New("test"))
	userID := uuid.New()
	cl := newConnectedClient(svc, userID)

	svc.removeClient(cl)

	if _, open := <-cl.events; open {
		t.Fatal("channel must be closed after removal")
	}
	svc.Publish(userID, Event{Type: EventNewMessage})
}

func TestShutdownThenClientCleanupClosesOnce(t *testing.T) {
	svc := New(nopPresence{}, logger.New("test"))
	userID := uuid.New()
	cl := newConnectedClient(svc, userID)

	svc.Close()

	// The stream handler's deferred cleanup still runs after shutdown;
	// the channel must not be closed a second time.
	svc.removeClient(cl)

	if _, open := <-cl.events; open {
		t.Fatal("channel must be closed after shutdown")
	}

	svc.Publish(userID, Event{Type: EventNewMessage})
	svc.Broadcast(Event{Type: EventAdvisorPresence})
}
