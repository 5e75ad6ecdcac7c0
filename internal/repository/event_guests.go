package repository

import (
	"context"
	"database/sql"

	"tessera/internal/apperrors"
	"tessera/internal/database"
	"tessera/internal/models"
)

type EventGuestRepository struct {
	db *database.DB
}

func NewEventGuestRepository(db *database.DB) *EventGuestRepository {
	return &EventGuestRepository{db: db}
}

func (r *EventGuestRepository) Create(ctx context.Context, eg *models.EventGuest) error {
	query := `
		INSERT INTO event_guests (event_id, guest_id, invitation_code, status, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		eg.EventID,
		eg.GuestID,
		eg.InvitationCode,
		eg.Status,
		eg.CreatedBy,
		eg.UpdatedBy,
	).Scan(&eg.ID, &eg.CreatedAt, &eg.UpdatedAt)

	return translateDBError(err, "event_guest")
}

func (r *EventGuestRepository) GetByID(ctx context.Context, id int64) (*models.EventGuest, error) {
	eg := &models.EventGuest{}
	query := `
		SELECT id, event_id, guest_id, invitation_code, status, is_present, check_in_time,
		       created_by, updated_by, created_at, updated_at
		FROM event_guests
		WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&eg.ID,
		&eg.EventID,
		&eg.GuestID,
		&eg.InvitationCode,
		&eg.Status,
		&eg.IsPresent,
		&eg.CheckInTime,
		&eg.CreatedBy,
		&eg.UpdatedBy,
		&eg.CreatedAt,
		&eg.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return eg, translateDBError(err, "event_guest")
}

// allowedTransition encodes the invitation state machine: a cancelled
// invitation never comes back, and nothing returns to pending.
func allowedTransition(from, to string) bool {
	switch from {
	case models.GuestStatusPending:
		return to == models.GuestStatusConfirmed || to == models.GuestStatusCancelled
	case models.GuestStatusConfirmed:
		return to == models.GuestStatusCancelled
	default:
		return false
	}
}

// UpdateStatus applies an invitation status transition, rejecting illegal
// ones with a typed conflict
func (r *EventGuestRepository) UpdateStatus(ctx context.Context, id int64, status string, updatedBy int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translateDBError(err, "event_guest")
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM event_guests WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		id).Scan(&current)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.KindNotFound, "EVENT_GUEST_NOT_FOUND", "event guest not found")
	}
	if err != nil {
		return translateDBError(err, "event_guest")
	}

	if current == status {
		return tx.Commit()
	}

	if !allowedTransition(current, status) {
		return apperrors.Newf(apperrors.KindConflict, apperrors.CodeInvalidTransition,
			"invitation cannot move from %s to %s", current, status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE event_guests SET status = $1, updated_by = $2, updated_at = NOW() WHERE id = $3`,
		status, updatedBy, id)
	if err != nil {
		return translateDBError(err, "event_guest")
	}

	return tx.Commit()
}

func (r *EventGuestRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE event_guests SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return translateDBError(err, "event_guest")
}
