package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tessera/internal/models"
)

// CreateGenerationJob - POST /api/tickets/generation-jobs
func (h *Handlers) CreateGenerationJob(c *gin.Context) {
	var req models.CreateGenerationJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	resp, err := h.services.Jobs.CreateJob(c.Request.Context(), identity(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

// GetGenerationJob - GET /api/tickets/generation-jobs/:job_uid
func (h *Handlers) GetGenerationJob(c *gin.Context) {
	uid := c.Param("job_uid")
	if uid == "" {
		respondBadRequest(c, "job_uid is required")
		return
	}

	view, err := h.services.Jobs.GetJobStatus(c.Request.Context(), identity(c), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, view)
}

// ListGenerationJobs - GET /api/events/:event_id/generation-jobs
func (h *Handlers) ListGenerationJobs(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("event_id"), 10, 64)
	if err != nil || eventID <= 0 {
		respondBadRequest(c, "event_id must be a positive integer")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := c.Query("status")

	resp, err := h.services.Jobs.ListJobs(c.Request.Context(), identity(c), eventID, status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

// GenerationWebhook - POST /internal/generation/webhook
// Same payload as the result queue; the HMAC middleware has already
// authenticated the body.
func (h *Handlers) GenerationWebhook(c *gin.Context) {
	var msg models.ResultMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if err := h.services.Reconciler.Apply(c.Request.Context(), &msg); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"accepted": true})
}
