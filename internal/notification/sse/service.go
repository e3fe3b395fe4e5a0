// Package sse provides the advisor event stream. Connecting to the stream is
// what makes an advisor present: the hub marks the advisor online on connect
// and offline (debounced) when the connection goes away.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatdesk_backend/platform/logger"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventConnected           EventType = "connected"
	EventConversationUpdated EventType = "conversation_updated"
	EventNewMessage          EventType = "new_message"
	EventAdvisorPresence     EventType = "advisor_presence"
)

// Event represents an SSE event payload
type Event struct {
	Type           EventType   `json:"type"`
	ConversationID uuid.UUID   `json:"conversationId,omitempty"`
	AdvisorID      uuid.UUID   `json:"advisorId,omitempty"`
	Message        string      `json:"message,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

// PresenceMarker ties stream connections to advisor presence. Each stream
// connection is one presence session.
type PresenceMarker interface {
	MarkOnline(userID uuid.UUID, sessionID string)
	MarkOfflineBySession(sessionID string)
}

// client represents one connected stream. closed is guarded by the service
// mutex; once set, the events channel must not be sent to or closed again.
type client struct {
	userID    uuid.UUID
	sessionID string
	events    chan Event
	closed    bool
}

// Service manages stream connections and event delivery.
type Service struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID][]*client // userID -> connections
	presence PresenceMarker
	log      *logger.Logger
}

// New creates a new SSE service.
func New(presence PresenceMarker, log *logger.Logger) *Service {
	return &Service{
		clients:  make(map[uuid.UUID][]*client),
		presence: presence,
		log:      log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.userID] = append(s.clients[c.userID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.userID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(s.clients[c.userID]) == 0 {
		delete(s.clients, c.userID)
	}

	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// Publish sends an event to one advisor's connections. The non-blocking send
// happens under the read lock so a concurrent close cannot race it.
func (s *Service) Publish(userID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients[userID] {
		if c.closed {
			continue
		}
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse event buffer full, event dropped", "user_id", userID, "type", event.Type)
		}
	}
}

// Broadcast sends an event to every connected advisor.
func (s *Service) Broadcast(event Event) {
	s.mu.RLock()
	userIDs := make([]uuid.UUID, 0, len(s.clients))
	for userID := range s.clients {
		userIDs = append(userIDs, userID)
	}
	s.mu.RUnlock()

	for _, userID := range userIDs {
		s.Publish(userID, event)
	}
}

// EmitConversationUpdate pushes a conversation state change to one advisor.
func (s *Service) EmitConversationUpdate(userID, conversationID uuid.UUID, data interface{}) {
	s.Publish(userID, Event{
		Type:           EventConversationUpdated,
		ConversationID: conversationID,
		Data:           data,
	})
}

// EmitNewMessage pushes an inbound customer message to the handling advisor.
func (s *Service) EmitNewMessage(userID, conversationID uuid.UUID, message string) {
	s.Publish(userID, Event{
		Type:           EventNewMessage,
		ConversationID: conversationID,
		Message:        message,
	})
}

// EmitAdvisorPresenceUpdate tells every connected advisor that a colleague's
// presence changed.
func (s *Service) EmitAdvisorPresenceUpdate(advisorID uuid.UUID, online bool) {
	s.Broadcast(Event{
		Type:      EventAdvisorPresence,
		AdvisorID: advisorID,
		Data:      map[string]interface{}{"online": online},
	})
}

// Handler returns a Gin handler for the advisor stream. Each connection gets
// its own presence session id, so closing one tab only decrements the
// connection count.
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		sessionID := uuid.NewString()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID:    userID,
			sessionID: sessionID,
			events:    make(chan Event, 32),
		}
		s.addClient(cl)
		s.presence.MarkOnline(userID, sessionID)
		defer func() {
			s.removeClient(cl)
			s.presence.MarkOfflineBySession(sessionID)
		}()

		c.SSEvent(string(EventConnected), gin.H{"userId": userID, "sessionId": sessionID})
		c.Writer.Flush()

		s.log.Info("advisor stream connected", "user_id", userID, "session_id", sessionID)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Info("advisor stream disconnected", "user_id", userID, "session_id", sessionID)
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down every stream.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			if !c.closed {
				c.closed = true
				close(c.events)
			}
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
