package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Logical queue subjects
const (
	QueueGenerationRequests = "generation.requests"
	QueueGenerationResults  = "generation.results"
)

// GuestPayload is the guest slice of the render payload
type GuestPayload struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

// TicketTypePayload is the ticket-type slice of the render payload
type TicketTypePayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TemplatePayload is the template slice of the render payload
type TemplatePayload struct {
	ID              *int64  `json:"id,omitempty"`
	SourceFilesPath string  `json:"source_files_path"`
	PreviewURL      *string `json:"preview_url,omitempty"`
}

// EventPayload is the event slice of the render payload.
// Date is UTC ISO-8601.
type EventPayload struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location"`
	Date     string `json:"date"`
}

// EnrichedTicket is the full payload the renderer needs for one ticket,
// independent of the relational schema
type EnrichedTicket struct {
	TicketID   int64             `json:"ticket_id"`
	TicketCode string            `json:"ticket_code"`
	Guest      GuestPayload      `json:"guest"`
	TicketType TicketTypePayload `json:"ticket_type"`
	Template   TemplatePayload   `json:"template"`
	Event      EventPayload      `json:"event"`
}

// EnrichDiagnostic records why a requested ticket was skipped or flagged
type EnrichDiagnostic struct {
	TicketID int64    `json:"ticket_id"`
	Reason   string   `json:"reason"`
	Missing  []string `json:"missing,omitempty"`
}

// GenerationRequestMessage is what gets enqueued for the external renderer
type GenerationRequestMessage struct {
	JobUID     string             `json:"job_uid"`
	EventID    int64              `json:"event_id"`
	Tickets    []EnrichedTicket   `json:"tickets"`
	Options    *GenerationOptions `json:"options,omitempty"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// PDFFile describes a rendered artifact
type PDFFile struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// TicketResult is the renderer's per-ticket outcome
type TicketResult struct {
	TicketID     int64      `json:"ticket_id"`
	Success      bool       `json:"success"`
	QRCodeData   *string    `json:"qr_code_data,omitempty"`
	PDFFile      *PDFFile   `json:"pdf_file,omitempty"`
	GeneratedAt  *time.Time `json:"generated_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// ResultSummary aggregates per-ticket outcomes
type ResultSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ResultMessage arrives on the result queue, or via the webhook with the
// identical shape
type ResultMessage struct {
	JobUID           string         `json:"job_uid"`
	Status           string         `json:"status"`
	Timestamp        time.Time      `json:"timestamp"`
	ProcessingTimeMS *int64         `json:"processing_time_ms,omitempty"`
	Tickets          []TicketResult `json:"tickets,omitempty"`
	Summary          *ResultSummary `json:"summary,omitempty"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
}

// JobDetails is the opaque details JSON persisted with each job: the input
// ids, the renderer options, the enriched snapshot, and the result summary
// once known.
type JobDetails struct {
	TicketIDs        []int64            `json:"ticket_ids,omitempty"`
	Options          *GenerationOptions `json:"options,omitempty"`
	Tickets          []EnrichedTicket   `json:"tickets,omitempty"`
	Warnings         []EnrichDiagnostic `json:"warnings,omitempty"`
	Summary          *ResultSummary     `json:"summary,omitempty"`
	ProcessingTimeMS *int64             `json:"processing_time_ms,omitempty"`
	FailedTickets    []TicketResult     `json:"failed_tickets,omitempty"`
}

// Value implements driver.Valuer so details round-trip through the JSONB column
func (d JobDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for the JSONB column
func (d *JobDetails) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = JobDetails{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported type for JobDetails: %T", src)
	}
}
