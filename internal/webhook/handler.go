package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatdesk_backend/platform/httpkit"
	"chatdesk_backend/platform/validator"
)

// Handler handles inbound webhook and API key management requests.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// IngestMessageRequest is the inbound message payload.
type IngestMessageRequest struct {
	Phone       string  `json:"phone" binding:"required"`
	ContactName string  `json:"contactName"`
	Body        string  `json:"body" binding:"required"`
	QueueID     *string `json:"queueId"`
	BotFlowID   *string `json:"botFlowId"`
}

// HandleIngestMessage receives one customer message from a channel
// integration.
// POST /api/v1/webhook/messages
func (h *Handler) HandleIngestMessage(c *gin.Context) {
	var req IngestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	input := IngestMessageInput{
		Phone:       req.Phone,
		ContactName: req.ContactName,
		Body:        req.Body,
		BotFlowID:   req.BotFlowID,
	}
	if req.QueueID != nil {
		queueID, err := uuid.Parse(*req.QueueID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid queue ID", nil)
			return
		}
		input.QueueID = &queueID
	}

	result, err := h.service.IngestMessage(c.Request.Context(), input)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"conversationId": result.ConversationID,
		"created":        result.Created,
	})
}

// CreateAPIKeyRequest names a new integration key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// HandleCreateAPIKey mints a new API key. The plaintext is returned exactly
// once.
// POST /api/v1/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "key generation failed", nil)
		return
	}

	key, err := h.repo.Create(c.Request.Context(), req.Name, hash, prefix)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "key storage failed", nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        key.ID,
		"name":      key.Name,
		"key":       plaintext,
		"keyPrefix": key.KeyPrefix,
		"createdAt": key.CreatedAt,
	})
}

// HandleListAPIKeys lists keys without their hashes.
// GET /api/v1/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	keys, err := h.repo.List(c.Request.Context())
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "key listing failed", nil)
		return
	}

	out := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		out = append(out, gin.H{
			"id":        key.ID,
			"name":      key.Name,
			"keyPrefix": key.KeyPrefix,
			"isActive":  key.IsActive,
			"createdAt": key.CreatedAt,
		})
	}
	httpkit.OK(c, out)
}

// HandleRevokeAPIKey deactivates a key.
// DELETE /api/v1/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID); err != nil {
		httpkit.Error(c, http.StatusNotFound, "key not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}
