// Package transport defines the request/response DTOs for the conversations module.
package transport

import (
	"time"

	"chatdesk_backend/internal/conversations/repository"
)

// ConversationResponse is the public representation of a conversation.
type ConversationResponse struct {
	ID           string     `json:"id"`
	Phone        string     `json:"phone"`
	ContactName  string     `json:"contactName"`
	Status       string     `json:"status"`
	AssignedTo   *string    `json:"assignedTo,omitempty"`
	QueueID      *string    `json:"queueId,omitempty"`
	BotFlowID    *string    `json:"botFlowId,omitempty"`
	BotStartedAt *time.Time `json:"botStartedAt,omitempty"`
	QueuedAt     *time.Time `json:"queuedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ConversationListResponse wraps a list of conversations.
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// ListConversationsRequest filters the conversation listing.
type ListConversationsRequest struct {
	Status  string `form:"status" binding:"omitempty,oneof=active attending closed"`
	QueueID string `form:"queueId" binding:"omitempty,uuid"`
	Mine    bool   `form:"mine"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ToResponse maps a repository conversation to its DTO.
func ToResponse(c repository.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:           c.ID.String(),
		Phone:        c.Phone,
		ContactName:  c.ContactName,
		Status:       string(c.Status),
		BotFlowID:    c.BotFlowID,
		BotStartedAt: c.BotStartedAt,
		QueuedAt:     c.QueuedAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.AssignedTo != nil {
		s := c.AssignedTo.String()
		resp.AssignedTo = &s
	}
	if c.QueueID != nil {
		s := c.QueueID.String()
		resp.QueueID = &s
	}
	return resp
}
