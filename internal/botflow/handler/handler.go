package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatdesk_backend/internal/botflow/service"
	"chatdesk_backend/internal/botflow/transport"
	"chatdesk_backend/platform/httpkit"
)

// Handler handles HTTP requests for bot-flow handoff configuration.
type Handler struct {
	svc *service.Service
}

// New creates a new bot-flow config handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// List returns every configured flow.
// GET /api/v1/botflows/timeouts
func (h *Handler) List(c *gin.Context) {
	configs, err := h.svc.ListConfigs(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ConfigResponse, 0, len(configs))
	for _, config := range configs {
		out = append(out, transport.ToResponse(config))
	}
	httpkit.OK(c, out)
}

// Get returns one flow's handoff policy.
// GET /api/v1/botflows/:flowId/timeout
func (h *Handler) Get(c *gin.Context) {
	config, err := h.svc.GetConfig(c.Request.Context(), c.Param("flowId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToResponse(config))
}

// Save creates or replaces one flow's handoff policy.
// PUT /api/v1/botflows/:flowId/timeout
func (h *Handler) Save(c *gin.Context) {
	var req transport.SaveConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	config, err := h.svc.SaveConfig(c.Request.Context(), c.Param("flowId"), req.TimeoutMinutes, req.FallbackQueueID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToResponse(config))
}

// Delete removes one flow's handoff policy.
// DELETE /api/v1/botflows/:flowId/timeout
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.DeleteConfig(c.Request.Context(), c.Param("flowId")); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}
