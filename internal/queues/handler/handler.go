package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatdesk_backend/internal/queues/service"
	"chatdesk_backend/internal/queues/transport"
	"chatdesk_backend/platform/httpkit"
	"chatdesk_backend/platform/validator"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid queue ID"
	msgInvalidAdvisor = "invalid advisor ID"
)

// Handler handles HTTP requests for the queue directory.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new queue directory handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// List retrieves all queues.
// GET /api/v1/queues
func (h *Handler) List(c *gin.Context) {
	result, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetByID retrieves a queue by ID.
// GET /api/v1/queues/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AddMember adds an advisor to a queue roster (admin only).
// POST /api/v1/admin/queues/:id/members
func (h *Handler) AddMember(c *gin.Context) {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	advisorID, err := uuid.Parse(req.AdvisorID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAdvisor, nil)
		return
	}

	if httpkit.HandleError(c, h.svc.AddMember(c.Request.Context(), queueID, advisorID, req.IsSupervisor)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember removes an advisor from a queue roster (admin only).
// DELETE /api/v1/admin/queues/:id/members/:advisorId
func (h *Handler) RemoveMember(c *gin.Context) {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	advisorID, err := uuid.Parse(c.Param("advisorId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAdvisor, nil)
		return
	}

	if httpkit.HandleError(c, h.svc.RemoveMember(c.Request.Context(), queueID, advisorID)) {
		return
	}
	c.Status(http.StatusNoContent)
}
