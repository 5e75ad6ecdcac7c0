package repository

import (
	"context"
	"fmt"
	"time"

	"tessera/internal/database"
	"tessera/internal/models"
)

type ScanRepository struct {
	db *database.DB
}

func NewScanRepository(db *database.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create appends one audit row. Scan logs are written for every attempt,
// valid or not, and are never updated afterwards.
func (r *ScanRepository) Create(ctx context.Context, log *models.ScanLog) error {
	query := `
		INSERT INTO scan_logs (ticket_id, event_id, operator_id, scan_time, location, device_id,
		                       checkpoint, latitude, longitude, result, result_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		log.TicketID,
		log.EventID,
		log.OperatorID,
		log.ScanTime,
		log.Location,
		log.DeviceID,
		log.Checkpoint,
		log.Latitude,
		log.Longitude,
		log.Result,
		log.ResultCode,
	).Scan(&log.ID, &log.CreatedAt)

	return translateDBError(err, "scan_log")
}

func scanLogColumns() string {
	return `id, ticket_id, event_id, operator_id, scan_time, location, device_id, checkpoint,
	       latitude, longitude, result, result_code, created_at`
}

func scanLogRow(row interface{ Scan(...any) error }, log *models.ScanLog) error {
	return row.Scan(
		&log.ID,
		&log.TicketID,
		&log.EventID,
		&log.OperatorID,
		&log.ScanTime,
		&log.Location,
		&log.DeviceID,
		&log.Checkpoint,
		&log.Latitude,
		&log.Longitude,
		&log.Result,
		&log.ResultCode,
		&log.CreatedAt,
	)
}

// RecentForTicket returns the latest scans of one ticket, newest first.
// Feeds the fraud analyzer.
func (r *ScanRepository) RecentForTicket(ctx context.Context, ticketID int64, limit int) ([]models.ScanLog, error) {
	query := `SELECT ` + scanLogColumns() + `
		FROM scan_logs
		WHERE ticket_id = $1
		ORDER BY scan_time DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, ticketID, limit)
	if err != nil {
		return nil, translateDBError(err, "scan_log")
	}
	defer rows.Close()

	var logs []models.ScanLog
	for rows.Next() {
		var log models.ScanLog
		if err := scanLogRow(rows, &log); err != nil {
			return nil, translateDBError(err, "scan_log")
		}
		logs = append(logs, log)
	}

	return logs, translateDBError(rows.Err(), "scan_log")
}

// ListForEvent pages through an event's audit history, optionally bounded
// by a time window
func (r *ScanRepository) ListForEvent(ctx context.Context, eventID int64, from, to *time.Time, page, limit int) ([]models.ScanLog, int64, error) {
	where := ` WHERE event_id = $1`
	args := []any{eventID}

	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND scan_time >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND scan_time <= $%d", len(args))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, translateDBError(err, "scan_log")
	}

	query := `SELECT ` + scanLogColumns() + ` FROM scan_logs` + where +
		fmt.Sprintf(` ORDER BY scan_time DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, translateDBError(err, "scan_log")
	}
	defer rows.Close()

	var logs []models.ScanLog
	for rows.Next() {
		var log models.ScanLog
		if err := scanLogRow(rows, &log); err != nil {
			return nil, 0, translateDBError(err, "scan_log")
		}
		logs = append(logs, log)
	}

	return logs, total, translateDBError(rows.Err(), "scan_log")
}
