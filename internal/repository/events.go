package repository

import (
	"context"
	"database/sql"

	"tessera/internal/database"
	"tessera/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (organizer_id, title, description, event_date, location, status, max_attendees)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		event.OrganizerID,
		event.Title,
		event.Description,
		event.EventDate,
		event.Location,
		event.Status,
		event.MaxAttendees,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)

	return translateDBError(err, "event")
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	event := &models.Event{}
	query := `
		SELECT id, organizer_id, title, description, event_date, location, status, max_attendees,
		       created_at, updated_at
		FROM events
		WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.OrganizerID,
		&event.Title,
		&event.Description,
		&event.EventDate,
		&event.Location,
		&event.Status,
		&event.MaxAttendees,
		&event.CreatedAt,
		&event.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return event, translateDBError(err, "event")
}

func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, event_date = $3, location = $4,
		    status = $5, max_attendees = $6, updated_at = NOW()
		WHERE id = $7 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query,
		event.Title,
		event.Description,
		event.EventDate,
		event.Location,
		event.Status,
		event.MaxAttendees,
		event.ID,
	)

	return translateDBError(err, "event")
}

func (r *EventRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE events SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return translateDBError(err, "event")
}

// CountValidated returns the number of consumed tickets for an event,
// joined through event_guests
func (r *EventRepository) CountValidated(ctx context.Context, eventID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM tickets t
		JOIN event_guests eg ON eg.id = t.event_guest_id
		WHERE eg.event_id = $1 AND t.is_validated = TRUE
		  AND t.deleted_at IS NULL AND eg.deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, eventID).Scan(&count)
	return count, translateDBError(err, "event")
}
