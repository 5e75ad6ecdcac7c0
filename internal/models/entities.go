package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event statuses. Only published events admit scans.
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusArchived  = "archived"
)

// Event guest invitation statuses
const (
	GuestStatusPending   = "pending"
	GuestStatusConfirmed = "confirmed"
	GuestStatusCancelled = "cancelled"
)

// Generation job lifecycle statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IsTerminalJobStatus reports whether a job status admits no further transitions
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Scan results
const (
	ScanResultValid   = "valid"
	ScanResultInvalid = "invalid"
)

// Event represents an event owned by an organizer
type Event struct {
	ID           int64      `json:"id" db:"id"`
	OrganizerID  int64      `json:"organizer_id" db:"organizer_id"`
	Title        string     `json:"title" db:"title"`
	Description  *string    `json:"description" db:"description"`
	EventDate    *time.Time `json:"event_date" db:"event_date"`
	Location     *string    `json:"location" db:"location"`
	Status       string     `json:"status" db:"status"`
	MaxAttendees *int       `json:"max_attendees" db:"max_attendees"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`
}

// Guest represents an invited person, independent of any event
type Guest struct {
	ID        int64      `json:"id" db:"id"`
	FirstName string     `json:"first_name" db:"first_name"`
	LastName  *string    `json:"last_name" db:"last_name"`
	Email     *string    `json:"email" db:"email"`
	Phone     *string    `json:"phone" db:"phone"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// EventGuest associates a guest with an event
type EventGuest struct {
	ID             int64      `json:"id" db:"id"`
	EventID        int64      `json:"event_id" db:"event_id"`
	GuestID        int64      `json:"guest_id" db:"guest_id"`
	InvitationCode string     `json:"invitation_code" db:"invitation_code"`
	Status         string     `json:"status" db:"status"`
	IsPresent      bool       `json:"is_present" db:"is_present"`
	CheckInTime    *time.Time `json:"check_in_time" db:"check_in_time"`
	CreatedBy      *int64     `json:"created_by" db:"created_by"`
	UpdatedBy      *int64     `json:"updated_by" db:"updated_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"-" db:"deleted_at"`
}

// TicketType represents a category of tickets for an event
type TicketType struct {
	ID            int64           `json:"id" db:"id"`
	EventID       int64           `json:"event_id" db:"event_id"`
	Name          string          `json:"name" db:"name"`
	Type          string          `json:"type" db:"type"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Currency      string          `json:"currency" db:"currency"`
	AvailableFrom *time.Time      `json:"available_from" db:"available_from"`
	AvailableTo   *time.Time      `json:"available_to" db:"available_to"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time      `json:"-" db:"deleted_at"`
}

// TicketTemplate points at the render sources used by the external renderer
type TicketTemplate struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	SourceFilesPath string     `json:"source_files_path" db:"source_files_path"`
	PreviewURL      *string    `json:"preview_url" db:"preview_url"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"-" db:"deleted_at"`
}

// Ticket represents an issued ticket for one event guest
type Ticket struct {
	ID               int64           `json:"id" db:"id"`
	TicketCode       string          `json:"ticket_code" db:"ticket_code"`
	QRCodeData       *string         `json:"qr_code_data" db:"qr_code_data"`
	TicketTypeID     int64           `json:"ticket_type_id" db:"ticket_type_id"`
	TicketTemplateID *int64          `json:"ticket_template_id" db:"ticket_template_id"`
	EventGuestID     int64           `json:"event_guest_id" db:"event_guest_id"`
	Price            decimal.Decimal `json:"price" db:"price"`
	Currency         string          `json:"currency" db:"currency"`
	IsValidated      bool            `json:"is_validated" db:"is_validated"`
	ValidatedAt      *time.Time      `json:"validated_at" db:"validated_at"`
	TicketFileURL    *string         `json:"ticket_file_url" db:"ticket_file_url"`
	GeneratedAt      *time.Time      `json:"generated_at" db:"generated_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time      `json:"-" db:"deleted_at"`
}

// GenerationJob tracks one asynchronous render request end to end.
// The uid doubles as the queue idempotency key.
type GenerationJob struct {
	ID               int64      `json:"id" db:"id"`
	UID              string     `json:"uid" db:"uid"`
	EventID          int64      `json:"event_id" db:"event_id"`
	CreatedBy        int64      `json:"created_by" db:"created_by"`
	Status           string     `json:"status" db:"status"`
	TicketsCount     int        `json:"tickets_count" db:"tickets_count"`
	TicketsProcessed int        `json:"tickets_processed" db:"tickets_processed"`
	Details          JobDetails `json:"details" db:"details"`
	ErrorMessage     *string    `json:"error_message" db:"error_message"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	StartedAt        *time.Time `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time `json:"-" db:"deleted_at"`
}

// ScanLog is one append-only audit row per scan attempt, valid or not
type ScanLog struct {
	ID         int64     `json:"id" db:"id"`
	TicketID   int64     `json:"ticket_id" db:"ticket_id"`
	EventID    int64     `json:"event_id" db:"event_id"`
	OperatorID int64     `json:"operator_id" db:"operator_id"`
	ScanTime   time.Time `json:"scan_time" db:"scan_time"`
	Location   *string   `json:"location" db:"location"`
	DeviceID   *string   `json:"device_id" db:"device_id"`
	Checkpoint *string   `json:"checkpoint" db:"checkpoint"`
	Latitude   *float64  `json:"latitude" db:"latitude"`
	Longitude  *float64  `json:"longitude" db:"longitude"`
	Result     string    `json:"result" db:"result"`
	ResultCode string    `json:"result_code" db:"result_code"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
