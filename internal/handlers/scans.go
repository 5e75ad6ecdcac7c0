package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tessera/internal/models"
)

// ValidateScan - POST /api/scans/validate
func (h *Handlers) ValidateScan(c *gin.Context) {
	var req models.ValidateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	resp, err := h.services.Scans.Validate(c.Request.Context(), identity(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

// ListScans - GET /api/events/:event_id/scans
func (h *Handlers) ListScans(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("event_id"), 10, 64)
	if err != nil || eventID <= 0 {
		respondBadRequest(c, "event_id must be a positive integer")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	from, err := parseTimeQuery(c.Query("date_from"))
	if err != nil {
		respondBadRequest(c, "date_from must be RFC3339")
		return
	}
	to, err := parseTimeQuery(c.Query("date_to"))
	if err != nil {
		respondBadRequest(c, "date_to must be RFC3339")
		return
	}

	resp, err := h.services.Scans.ListScans(c.Request.Context(), identity(c), eventID, from, to, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func parseTimeQuery(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
