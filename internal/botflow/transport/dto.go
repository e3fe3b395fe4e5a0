// Package transport defines request and response DTOs for bot-flow config
// endpoints.
package transport

import (
	"time"

	"github.com/google/uuid"

	"chatdesk_backend/internal/botflow/repository"
)

// SaveConfigRequest sets a flow's handoff policy.
type SaveConfigRequest struct {
	TimeoutMinutes  int       `json:"timeoutMinutes" binding:"required,gte=1,lte=1440"`
	FallbackQueueID uuid.UUID `json:"fallbackQueueId" binding:"required"`
}

// ConfigResponse is the wire shape of a flow's handoff policy.
type ConfigResponse struct {
	FlowID          string    `json:"flowId"`
	TimeoutMinutes  int       `json:"timeoutMinutes"`
	FallbackQueueID uuid.UUID `json:"fallbackQueueId"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ToResponse maps a stored config to its wire shape.
func ToResponse(config repository.TimeoutConfig) ConfigResponse {
	return ConfigResponse{
		FlowID:          config.FlowID,
		TimeoutMinutes:  config.TimeoutMinutes,
		FallbackQueueID: config.FallbackQueueID,
		UpdatedAt:       config.UpdatedAt,
	}
}
