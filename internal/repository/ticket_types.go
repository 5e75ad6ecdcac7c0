package repository

import (
	"context"
	"database/sql"

	"tessera/internal/database"
	"tessera/internal/models"
)

type TicketTypeRepository struct {
	db *database.DB
}

func NewTicketTypeRepository(db *database.DB) *TicketTypeRepository {
	return &TicketTypeRepository{db: db}
}

func (r *TicketTypeRepository) Create(ctx context.Context, tt *models.TicketType) error {
	query := `
		INSERT INTO ticket_types (event_id, name, type, quantity, price, currency, available_from, available_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		tt.EventID,
		tt.Name,
		tt.Type,
		tt.Quantity,
		tt.Price,
		tt.Currency,
		tt.AvailableFrom,
		tt.AvailableTo,
	).Scan(&tt.ID, &tt.CreatedAt, &tt.UpdatedAt)

	return translateDBError(err, "ticket_type")
}

func (r *TicketTypeRepository) GetByID(ctx context.Context, id int64) (*models.TicketType, error) {
	tt := &models.TicketType{}
	query := `
		SELECT id, event_id, name, type, quantity, price, currency, available_from, available_to,
		       created_at, updated_at
		FROM ticket_types
		WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.Type,
		&tt.Quantity,
		&tt.Price,
		&tt.Currency,
		&tt.AvailableFrom,
		&tt.AvailableTo,
		&tt.CreatedAt,
		&tt.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return tt, translateDBError(err, "ticket_type")
}

func (r *TicketTypeRepository) ListForEvent(ctx context.Context, eventID int64, page, limit int) ([]models.TicketType, error) {
	var types []models.TicketType
	query := `
		SELECT id, event_id, name, type, quantity, price, currency, available_from, available_to,
		       created_at, updated_at
		FROM ticket_types
		WHERE event_id = $1 AND deleted_at IS NULL
		ORDER BY id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, eventID, limit, (page-1)*limit)
	if err != nil {
		return nil, translateDBError(err, "ticket_type")
	}
	defer rows.Close()

	for rows.Next() {
		var tt models.TicketType
		err := rows.Scan(
			&tt.ID,
			&tt.EventID,
			&tt.Name,
			&tt.Type,
			&tt.Quantity,
			&tt.Price,
			&tt.Currency,
			&tt.AvailableFrom,
			&tt.AvailableTo,
			&tt.CreatedAt,
			&tt.UpdatedAt,
		)
		if err != nil {
			return nil, translateDBError(err, "ticket_type")
		}
		types = append(types, tt)
	}

	return types, translateDBError(rows.Err(), "ticket_type")
}

func (r *TicketTypeRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE ticket_types SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return translateDBError(err, "ticket_type")
}
