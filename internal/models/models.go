package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// APIResponse is the envelope every endpoint answers with
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerationOptions are renderer options passed through the job payload
type GenerationOptions struct {
	QRFormat    string `json:"qr_format,omitempty"`
	QRSize      int    `json:"qr_size,omitempty"`
	PDFFormat   string `json:"pdf_format,omitempty"`
	IncludeLogo bool   `json:"include_logo,omitempty"`
}

// CreateGenerationJobRequest - POST /api/tickets/generation-jobs
type CreateGenerationJobRequest struct {
	EventID   int64              `json:"event_id" binding:"required"`
	TicketIDs []int64            `json:"ticket_ids" binding:"required,min=1"`
	Options   *GenerationOptions `json:"options"`
}

// CreateGenerationJobResponse is returned with 201 on job creation
type CreateGenerationJobResponse struct {
	JobUID       string    `json:"job_uid"`
	Status       string    `json:"status"`
	TicketsCount int       `json:"tickets_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// QueueView is the queue's view of the in-flight task, when available
type QueueView struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// JobView - GET /api/tickets/generation-jobs/:job_uid
type JobView struct {
	JobUID           string             `json:"job_uid"`
	EventID          int64              `json:"event_id"`
	Status           string             `json:"status"`
	TicketsCount     int                `json:"tickets_count"`
	TicketsProcessed int                `json:"tickets_processed"`
	Summary          *ResultSummary     `json:"summary,omitempty"`
	ProcessingTimeMS *int64             `json:"processing_time_ms,omitempty"`
	ErrorMessage     *string            `json:"error_message,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	Queue            *QueueView         `json:"queue,omitempty"`
	Warnings         []EnrichDiagnostic `json:"warnings,omitempty"`
}

// ListJobsResponse - GET /api/events/:event_id/generation-jobs
type ListJobsResponse struct {
	Jobs       []JobView  `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes one page of a list response
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// ScanContext carries where and how a scan happened
type ScanContext struct {
	Location   *string  `json:"location,omitempty"`
	DeviceID   *string  `json:"device_id,omitempty"`
	Checkpoint *string  `json:"checkpoint,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// ValidateScanRequest - POST /api/scans/validate
type ValidateScanRequest struct {
	TicketCode  string      `json:"ticket_code" binding:"required"`
	EventID     int64       `json:"event_id" binding:"required"`
	QRData      *string     `json:"qr_data,omitempty"`
	ScanContext ScanContext `json:"scan_context"`
}

// ValidateScanResponse reports a successful validation
type ValidateScanResponse struct {
	TicketID    int64     `json:"ticket_id"`
	TicketCode  string    `json:"ticket_code"`
	GuestName   string    `json:"guest_name,omitempty"`
	ValidatedAt time.Time `json:"validated_at"`
	Advisory    any       `json:"advisory,omitempty"`
}

// ListScansResponse - GET /api/events/:event_id/scans
type ListScansResponse struct {
	Scans      []ScanLog  `json:"scans"`
	Pagination Pagination `json:"pagination"`
}

// QRPayload is the structure embedded in a ticket's QR code
type QRPayload struct {
	ID        int64 `json:"id"`
	EventID   int64 `json:"eventId"`
	Timestamp int64 `json:"timestamp"`
}

// ParseQRPayload decodes the QR content carried alongside a scan.
// Returns an error when the payload is not the expected JSON shape.
func ParseQRPayload(raw string) (*QRPayload, error) {
	var payload QRPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("malformed qr payload: %w", err)
	}
	if payload.ID == 0 || payload.EventID == 0 {
		return nil, fmt.Errorf("qr payload missing id or eventId")
	}
	return &payload, nil
}
