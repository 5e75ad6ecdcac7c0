package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tessera/internal/apperrors"
	"tessera/internal/database"
	"tessera/internal/models"
)

type JobRepository struct {
	db *database.DB
}

func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	query := `
		INSERT INTO generation_jobs (uid, event_id, created_by, status, tickets_count, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		job.UID,
		job.EventID,
		job.CreatedBy,
		job.Status,
		job.TicketsCount,
		job.Details,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	return translateDBError(err, "generation_job")
}

const jobColumns = `id, uid, event_id, created_by, status, tickets_count, tickets_processed,
	       details, error_message, created_at, started_at, completed_at, updated_at`

func scanJob(row interface{ Scan(...any) error }, job *models.GenerationJob) error {
	return row.Scan(
		&job.ID,
		&job.UID,
		&job.EventID,
		&job.CreatedBy,
		&job.Status,
		&job.TicketsCount,
		&job.TicketsProcessed,
		&job.Details,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
}

func (r *JobRepository) GetByUID(ctx context.Context, uid string) (*models.GenerationJob, error) {
	job := &models.GenerationJob{}
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE uid = $1 AND deleted_at IS NULL`

	err := scanJob(r.db.QueryRowContext(ctx, query, uid), job)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return job, translateDBError(err, "generation_job")
}

func (r *JobRepository) ListForEvent(ctx context.Context, eventID int64, status string, page, limit int) ([]models.GenerationJob, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM generation_jobs WHERE event_id = $1 AND deleted_at IS NULL`
	countArgs := []any{eventID}
	if status != "" {
		countQuery += ` AND status = $2`
		countArgs = append(countArgs, status)
	}
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, translateDBError(err, "generation_job")
	}

	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE event_id = $1 AND deleted_at IS NULL`
	args := []any{eventID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, translateDBError(err, "generation_job")
	}
	defer rows.Close()

	var jobs []models.GenerationJob
	for rows.Next() {
		var job models.GenerationJob
		if err := scanJob(rows, &job); err != nil {
			return nil, 0, translateDBError(err, "generation_job")
		}
		jobs = append(jobs, job)
	}

	return jobs, total, translateDBError(rows.Err(), "generation_job")
}

// MarkFailed moves a non-terminal job to failed with a reason. Terminal
// jobs are left untouched.
func (r *JobRepository) MarkFailed(ctx context.Context, uid, reason string) error {
	query := `
		UPDATE generation_jobs
		SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE uid = $3 AND status IN ($4, $5) AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query,
		models.JobStatusFailed, reason, uid,
		models.JobStatusPending, models.JobStatusProcessing)
	return translateDBError(err, "generation_job")
}

// ApplyResult applies one renderer result message to the job row and the
// per-ticket artifacts in a single transaction. Terminal jobs make it a
// no-op (idempotent replay). Returns whether a transition was written.
func (r *JobRepository) ApplyResult(ctx context.Context, msg *models.ResultMessage) (bool, error) {
	switch msg.Status {
	case models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed:
	default:
		return false, apperrors.Newf(apperrors.KindValidation, apperrors.CodeInvalidTransition,
			"unknown result status %q", msg.Status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, translateDBError(err, "generation_job")
	}
	defer tx.Rollback()

	job := &models.GenerationJob{}
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE uid = $1 AND deleted_at IS NULL FOR UPDATE`
	err = scanJob(tx.QueryRowContext(ctx, query, msg.JobUID), job)
	if err == sql.ErrNoRows {
		return false, apperrors.Newf(apperrors.KindNotFound, apperrors.CodeJobNotFound,
			"no job with uid %s", msg.JobUID)
	}
	if err != nil {
		return false, translateDBError(err, "generation_job")
	}

	// Terminal states never transition; a replay is acknowledged silently
	if models.IsTerminalJobStatus(job.Status) {
		return false, nil
	}

	details := job.Details
	if msg.Summary != nil {
		details.Summary = msg.Summary
	}
	if msg.ProcessingTimeMS != nil {
		details.ProcessingTimeMS = msg.ProcessingTimeMS
	}

	processed := job.TicketsProcessed
	var failedTickets []models.TicketResult
	for _, tr := range msg.Tickets {
		if tr.Success {
			processed++
		} else {
			failedTickets = append(failedTickets, tr)
		}
	}
	if len(failedTickets) > 0 {
		details.FailedTickets = append(details.FailedTickets, failedTickets...)
	}

	switch msg.Status {
	case models.JobStatusProcessing:
		_, err = tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = $1, started_at = COALESCE(started_at, NOW()),
			    details = $2, updated_at = NOW()
			WHERE id = $3`,
			models.JobStatusProcessing, details, job.ID)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = $1, started_at = COALESCE(started_at, NOW()), completed_at = NOW(),
			    tickets_processed = $2, details = $3, error_message = $4, updated_at = NOW()
			WHERE id = $5`,
			msg.Status, processed, details, msg.ErrorMessage, job.ID)
	}
	if err != nil {
		return false, translateDBError(err, "generation_job")
	}

	// Reconcile artifacts for the tickets that rendered
	for _, tr := range msg.Tickets {
		if !tr.Success {
			continue
		}

		generatedAt := time.Now().UTC()
		if tr.GeneratedAt != nil {
			generatedAt = *tr.GeneratedAt
		}

		var fileURL *string
		if tr.PDFFile != nil {
			fileURL = &tr.PDFFile.URL
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE tickets
			SET qr_code_data = COALESCE($1, qr_code_data),
			    ticket_file_url = COALESCE($2, ticket_file_url),
			    generated_at = $3, updated_at = NOW()
			WHERE id = $4 AND deleted_at IS NULL`,
			tr.QRCodeData, fileURL, generatedAt, tr.TicketID)
		if err != nil {
			return false, translateDBError(err, "ticket")
		}
	}

	if err := tx.Commit(); err != nil {
		return false, translateDBError(err, "generation_job")
	}

	return true, nil
}
