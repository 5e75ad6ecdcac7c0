package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"tessera/internal/database"
	"tessera/internal/models"
)

type TicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// ConsumeOutcome is the result of the conditional consumption update
type ConsumeOutcome int

const (
	ConsumeOK ConsumeOutcome = iota
	ConsumeAlreadyUsed
	ConsumeNotFound
	ConsumeEventFull
)

// ScanTicket is the joined row the scan engine validates against
type ScanTicket struct {
	ID           int64
	TicketCode   string
	QRCodeData   *string
	EventGuestID int64
	EventID      int64
	IsValidated  bool
	ValidatedAt  *time.Time
	GuestName    string
}

// EnrichmentRow is one row of the enrichment join. Left joins leave the
// optional columns NULL when a referenced row is missing or soft-deleted.
type EnrichmentRow struct {
	TicketID       int64
	TicketCode     string
	EventGuestID   *int64
	JoinEventID    *int64
	GuestFirstName *string
	GuestLastName  *string
	GuestEmail     *string
	GuestPhone     *string
	TypeID         *int64
	TypeName       *string
	TemplateID     *int64
	TemplatePath   *string
	TemplateURL    *string
	EventID        *int64
	EventTitle     *string
	EventLocation  *string
	EventDate      *time.Time
	EventCreatedAt *time.Time
}

func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO tickets (ticket_code, qr_code_data, ticket_type_id, ticket_template_id,
		                     event_guest_id, price, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		ticket.TicketCode,
		ticket.QRCodeData,
		ticket.TicketTypeID,
		ticket.TicketTemplateID,
		ticket.EventGuestID,
		ticket.Price,
		ticket.Currency,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)

	return translateDBError(err, "ticket")
}

func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*models.Ticket, error) {
	ticket := &models.Ticket{}
	query := `
		SELECT id, ticket_code, qr_code_data, ticket_type_id, ticket_template_id, event_guest_id,
		       price, currency, is_validated, validated_at, ticket_file_url, generated_at,
		       created_at, updated_at
		FROM tickets
		WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.TicketCode,
		&ticket.QRCodeData,
		&ticket.TicketTypeID,
		&ticket.TicketTemplateID,
		&ticket.EventGuestID,
		&ticket.Price,
		&ticket.Currency,
		&ticket.IsValidated,
		&ticket.ValidatedAt,
		&ticket.TicketFileURL,
		&ticket.GeneratedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return ticket, translateDBError(err, "ticket")
}

// GetScanTicket loads a ticket by code scoped to one event, joined through
// event_guests for the scan path
func (r *TicketRepository) GetScanTicket(ctx context.Context, ticketCode string, eventID int64) (*ScanTicket, error) {
	st := &ScanTicket{}
	query := `
		SELECT t.id, t.ticket_code, t.qr_code_data, t.event_guest_id, eg.event_id,
		       t.is_validated, t.validated_at,
		       TRIM(CONCAT(g.first_name, ' ', COALESCE(g.last_name, '')))
		FROM tickets t
		JOIN event_guests eg ON eg.id = t.event_guest_id AND eg.deleted_at IS NULL
		JOIN guests g ON g.id = eg.guest_id AND g.deleted_at IS NULL
		WHERE t.ticket_code = $1 AND eg.event_id = $2 AND t.deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, ticketCode, eventID).Scan(
		&st.ID,
		&st.TicketCode,
		&st.QRCodeData,
		&st.EventGuestID,
		&st.EventID,
		&st.IsValidated,
		&st.ValidatedAt,
		&st.GuestName,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return st, translateDBError(err, "ticket")
}

// ConsumeTicket is the serialization point for at-most-once consumption.
// The conditional update flips is_validated exactly once; concurrent
// callers observe either the update or the prior validated_at. When the
// event is capacity-bounded the count is re-checked inside the transaction
// under a lock on the event row.
func (r *TicketRepository) ConsumeTicket(ctx context.Context, ticketID, eventGuestID, eventID int64, maxAttendees *int) (ConsumeOutcome, *time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ConsumeNotFound, nil, translateDBError(err, "ticket")
	}
	defer tx.Rollback()

	if maxAttendees != nil {
		var lockedID int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM events WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
			eventID).Scan(&lockedID)
		if err == sql.ErrNoRows {
			return ConsumeNotFound, nil, nil
		}
		if err != nil {
			return ConsumeNotFound, nil, translateDBError(err, "ticket")
		}

		var validated int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM tickets t
			JOIN event_guests eg ON eg.id = t.event_guest_id
			WHERE eg.event_id = $1 AND t.is_validated = TRUE
			  AND t.deleted_at IS NULL AND eg.deleted_at IS NULL`,
			eventID).Scan(&validated)
		if err != nil {
			return ConsumeNotFound, nil, translateDBError(err, "ticket")
		}

		if validated >= *maxAttendees {
			return ConsumeEventFull, nil, nil
		}
	}

	var validatedAt time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE tickets
		SET is_validated = TRUE, validated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_validated = FALSE AND deleted_at IS NULL
		RETURNING validated_at`,
		ticketID).Scan(&validatedAt)

	if err == sql.ErrNoRows {
		// Either already consumed or gone; look at the row to tell
		var prior sql.NullTime
		lookupErr := tx.QueryRowContext(ctx,
			`SELECT validated_at FROM tickets WHERE id = $1 AND is_validated = TRUE AND deleted_at IS NULL`,
			ticketID).Scan(&prior)
		if lookupErr == sql.ErrNoRows {
			return ConsumeNotFound, nil, nil
		}
		if lookupErr != nil {
			return ConsumeNotFound, nil, translateDBError(lookupErr, "ticket")
		}
		if prior.Valid {
			return ConsumeAlreadyUsed, &prior.Time, nil
		}
		return ConsumeAlreadyUsed, nil, nil
	}
	if err != nil {
		return ConsumeNotFound, nil, translateDBError(err, "ticket")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE event_guests
		SET is_present = TRUE, check_in_time = COALESCE(check_in_time, NOW()), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		eventGuestID)
	if err != nil {
		return ConsumeNotFound, nil, translateDBError(err, "ticket")
	}

	if err := tx.Commit(); err != nil {
		return ConsumeNotFound, nil, translateDBError(err, "ticket")
	}

	return ConsumeOK, &validatedAt, nil
}

// FetchEnrichmentRows runs the enrichment join for a set of ticket ids.
// Soft-deleted rows on any side of a join come back as NULLs so the caller
// can diagnose exactly what is missing.
func (r *TicketRepository) FetchEnrichmentRows(ctx context.Context, ticketIDs []int64) ([]EnrichmentRow, error) {
	query := `
		SELECT t.id, t.ticket_code, t.event_guest_id, eg.event_id,
		       g.first_name, g.last_name, g.email, g.phone,
		       tt.id, tt.name,
		       tpl.id, tpl.source_files_path, tpl.preview_url,
		       e.id, e.title, e.location, e.event_date, e.created_at
		FROM tickets t
		LEFT JOIN event_guests eg ON eg.id = t.event_guest_id AND eg.deleted_at IS NULL
		LEFT JOIN guests g ON g.id = eg.guest_id AND g.deleted_at IS NULL
		LEFT JOIN ticket_types tt ON tt.id = t.ticket_type_id AND tt.deleted_at IS NULL
		LEFT JOIN ticket_templates tpl ON tpl.id = t.ticket_template_id AND tpl.deleted_at IS NULL
		LEFT JOIN events e ON e.id = eg.event_id AND e.deleted_at IS NULL
		WHERE t.id = ANY($1) AND t.deleted_at IS NULL
		ORDER BY t.id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ticketIDs))
	if err != nil {
		return nil, translateDBError(err, "ticket")
	}
	defer rows.Close()

	var result []EnrichmentRow
	for rows.Next() {
		var row EnrichmentRow
		err := rows.Scan(
			&row.TicketID,
			&row.TicketCode,
			&row.EventGuestID,
			&row.JoinEventID,
			&row.GuestFirstName,
			&row.GuestLastName,
			&row.GuestEmail,
			&row.GuestPhone,
			&row.TypeID,
			&row.TypeName,
			&row.TemplateID,
			&row.TemplatePath,
			&row.TemplateURL,
			&row.EventID,
			&row.EventTitle,
			&row.EventLocation,
			&row.EventDate,
			&row.EventCreatedAt,
		)
		if err != nil {
			return nil, translateDBError(err, "ticket")
		}
		result = append(result, row)
	}

	return result, translateDBError(rows.Err(), "ticket")
}

func (r *TicketRepository) ListForEvent(ctx context.Context, eventID int64, page, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := `
		SELECT t.id, t.ticket_code, t.qr_code_data, t.ticket_type_id, t.ticket_template_id,
		       t.event_guest_id, t.price, t.currency, t.is_validated, t.validated_at,
		       t.ticket_file_url, t.generated_at, t.created_at, t.updated_at
		FROM tickets t
		JOIN event_guests eg ON eg.id = t.event_guest_id AND eg.deleted_at IS NULL
		WHERE eg.event_id = $1 AND t.deleted_at IS NULL
		ORDER BY t.id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, eventID, limit, (page-1)*limit)
	if err != nil {
		return nil, translateDBError(err, "ticket")
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Ticket
		err := rows.Scan(
			&t.ID,
			&t.TicketCode,
			&t.QRCodeData,
			&t.TicketTypeID,
			&t.TicketTemplateID,
			&t.EventGuestID,
			&t.Price,
			&t.Currency,
			&t.IsValidated,
			&t.ValidatedAt,
			&t.TicketFileURL,
			&t.GeneratedAt,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, translateDBError(err, "ticket")
		}
		tickets = append(tickets, t)
	}

	return tickets, translateDBError(rows.Err(), "ticket")
}

func (r *TicketRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE tickets SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return translateDBError(err, "ticket")
}
