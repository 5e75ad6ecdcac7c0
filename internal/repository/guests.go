package repository

import (
	"context"
	"database/sql"

	"tessera/internal/database"
	"tessera/internal/models"
)

type GuestRepository struct {
	db *database.DB
}

func NewGuestRepository(db *database.DB) *GuestRepository {
	return &GuestRepository{db: db}
}

func (r *GuestRepository) Create(ctx context.Context, guest *models.Guest) error {
	query := `
		INSERT INTO guests (first_name, last_name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		guest.FirstName,
		guest.LastName,
		guest.Email,
		guest.Phone,
	).Scan(&guest.ID, &guest.CreatedAt, &guest.UpdatedAt)

	return translateDBError(err, "guest")
}

func (r *GuestRepository) GetByID(ctx context.Context, id int64) (*models.Guest, error) {
	guest := &models.Guest{}
	query := `
		SELECT id, first_name, last_name, email, phone, created_at, updated_at
		FROM guests
		WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&guest.ID,
		&guest.FirstName,
		&guest.LastName,
		&guest.Email,
		&guest.Phone,
		&guest.CreatedAt,
		&guest.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return guest, translateDBError(err, "guest")
}

func (r *GuestRepository) ListForEvent(ctx context.Context, eventID int64, page, limit int) ([]models.Guest, error) {
	var guests []models.Guest
	query := `
		SELECT g.id, g.first_name, g.last_name, g.email, g.phone, g.created_at, g.updated_at
		FROM guests g
		JOIN event_guests eg ON eg.guest_id = g.id
		WHERE eg.event_id = $1 AND g.deleted_at IS NULL AND eg.deleted_at IS NULL
		ORDER BY g.id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, eventID, limit, (page-1)*limit)
	if err != nil {
		return nil, translateDBError(err, "guest")
	}
	defer rows.Close()

	for rows.Next() {
		var guest models.Guest
		err := rows.Scan(
			&guest.ID,
			&guest.FirstName,
			&guest.LastName,
			&guest.Email,
			&guest.Phone,
			&guest.CreatedAt,
			&guest.UpdatedAt,
		)
		if err != nil {
			return nil, translateDBError(err, "guest")
		}
		guests = append(guests, guest)
	}

	return guests, translateDBError(rows.Err(), "guest")
}

func (r *GuestRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE guests SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return translateDBError(err, "guest")
}
