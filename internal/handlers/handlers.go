package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tessera/internal/apperrors"
	"tessera/internal/database"
	"tessera/internal/models"
	"tessera/internal/service"
)

type Handlers struct {
	services *service.Services
	db       *database.DB
}

func NewHandlers(services *service.Services, db *database.DB) *Handlers {
	return &Handlers{
		services: services,
		db:       db,
	}
}

// respond wraps data in the success envelope
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, models.APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// respondError maps a typed error onto the envelope and an HTTP status
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success:   false,
			Error:     "Internal server error",
			Code:      "INTERNAL",
			Timestamp: time.Now(),
		})
		return
	}

	c.Error(err)
	c.JSON(appErr.Kind.HTTPStatus(), models.APIResponse{
		Success:   false,
		Error:     appErr.Message,
		Code:      appErr.Code,
		Details:   appErr.Details,
		Timestamp: time.Now(),
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success:   false,
		Error:     message,
		Code:      "VALIDATION",
		Timestamp: time.Now(),
	})
}

// identity pulls the authenticated caller set by the JWT middleware
func identity(c *gin.Context) service.Identity {
	return service.Identity{
		UserID: c.GetInt64("user_id"),
		Role:   c.GetString("role"),
	}
}

// Health - GET /health
// Reports database reachability and connection pool stats.
func (h *Handlers) Health(c *gin.Context) {
	check := h.db.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if !check.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, models.APIResponse{
		Success:   check.Healthy(),
		Data:      check,
		Timestamp: time.Now(),
	})
}
