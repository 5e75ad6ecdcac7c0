package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"tessera/internal/apperrors"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/models"
	"tessera/internal/monitoring"
	"tessera/internal/repository"
)

// EventGetter resolves events for authorization checks
type EventGetter interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// JobStore is the job repository surface the coordinator uses
type JobStore interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByUID(ctx context.Context, uid string) (*models.GenerationJob, error)
	ListForEvent(ctx context.Context, eventID int64, status string, page, limit int) ([]models.GenerationJob, int64, error)
	MarkFailed(ctx context.Context, uid, reason string) error
}

// TicketEnricher builds renderer payloads from ticket ids
type TicketEnricher interface {
	Enrich(ctx context.Context, eventID int64, ticketIDs []int64) ([]models.EnrichedTicket, []models.EnrichDiagnostic, error)
}

// JobQueue is the producer surface the coordinator uses
type JobQueue interface {
	Enqueue(ctx context.Context, queue string, payload any, opts messaging.EnqueueOptions) error
	Stats(ctx context.Context, queue string) (*models.QueueView, error)
}

// JobService coordinates ticket generation jobs: enrich, persist, enqueue
type JobService struct {
	events   EventGetter
	jobs     JobStore
	enricher TicketEnricher
	queue    JobQueue
}

func NewJobService(events EventGetter, jobs JobStore, enricher TicketEnricher, queue JobQueue) *JobService {
	return &JobService{
		events:   events,
		jobs:     jobs,
		enricher: enricher,
		queue:    queue,
	}
}

// CreateJob validates the request, snapshots the enriched payload into a
// pending job row and enqueues it. The job uid doubles as the queue
// idempotency key, so a retried HTTP call cannot double-enqueue.
func (s *JobService) CreateJob(ctx context.Context, identity Identity, req *models.CreateGenerationJobRequest) (*models.CreateGenerationJobResponse, error) {
	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeEventNotFound, "event not found")
	}
	if !identity.IsAdmin() && event.OrganizerID != identity.UserID {
		return nil, apperrors.New(apperrors.KindForbidden, "FORBIDDEN",
			"only the event organizer can generate tickets")
	}

	enriched, warnings, err := s.enricher.Enrich(ctx, req.EventID, req.TicketIDs)
	if err != nil {
		return nil, err
	}

	job := &models.GenerationJob{
		UID:          uuid.NewString(),
		EventID:      req.EventID,
		CreatedBy:    identity.UserID,
		Status:       models.JobStatusPending,
		TicketsCount: len(enriched),
		Details: models.JobDetails{
			TicketIDs: req.TicketIDs,
			Options:   req.Options,
			Tickets:   enriched,
			Warnings:  warnings,
		},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	monitoring.TrackJobTransition(models.JobStatusPending)

	msg := models.GenerationRequestMessage{
		JobUID:     job.UID,
		EventID:    req.EventID,
		Tickets:    enriched,
		Options:    req.Options,
		EnqueuedAt: job.CreatedAt,
	}
	err = s.queue.Enqueue(ctx, models.QueueGenerationRequests, msg, messaging.EnqueueOptions{
		IdempotencyKey: job.UID,
	})
	if err != nil {
		logger.WithContext(ctx).Error("enqueue failed, failing job",
			slog.String("job_uid", job.UID), slog.Any("error", err))
		if failErr := s.jobs.MarkFailed(ctx, job.UID, "queue_error"); failErr != nil {
			logger.WithContext(ctx).Error("could not mark job failed",
				slog.String("job_uid", job.UID), slog.Any("error", failErr))
		}
		monitoring.TrackJobTransition(models.JobStatusFailed)
		return nil, apperrors.Wrap(apperrors.KindTransient, apperrors.CodeQueueError,
			"could not enqueue generation job", err)
	}

	return &models.CreateGenerationJobResponse{
		JobUID:       job.UID,
		Status:       job.Status,
		TicketsCount: job.TicketsCount,
		CreatedAt:    job.CreatedAt,
	}, nil
}

// GetJobStatus returns the DB-tracked lifecycle plus, for jobs still in
// flight, the queue's own view of the task.
func (s *JobService) GetJobStatus(ctx context.Context, identity Identity, uid string) (*models.JobView, error) {
	job, err := s.jobs.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.Newf(apperrors.KindNotFound, apperrors.CodeJobNotFound,
			"no generation job with uid %s", uid)
	}

	if !identity.IsAdmin() && job.CreatedBy != identity.UserID {
		event, err := s.events.GetByID(ctx, job.EventID)
		if err != nil || event == nil || event.OrganizerID != identity.UserID {
			return nil, apperrors.New(apperrors.KindForbidden, "FORBIDDEN",
				"not allowed to view this job")
		}
	}

	view := jobView(job)
	if !models.IsTerminalJobStatus(job.Status) {
		// Best effort: queue stats are advisory and must not fail the read
		if stats, err := s.queue.Stats(ctx, models.QueueGenerationRequests); err == nil {
			view.Queue = stats
		}
	}
	return view, nil
}

// ListJobs pages through an event's generation jobs, newest first
func (s *JobService) ListJobs(ctx context.Context, identity Identity, eventID int64, status string, page, limit int) (*models.ListJobsResponse, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeEventNotFound, "event not found")
	}
	if !identity.IsAdmin() && event.OrganizerID != identity.UserID {
		return nil, apperrors.New(apperrors.KindForbidden, "FORBIDDEN",
			"only the event organizer can list generation jobs")
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	jobs, total, err := s.jobs.ListForEvent(ctx, eventID, status, page, limit)
	if err != nil {
		return nil, err
	}

	views := make([]models.JobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, *jobView(&jobs[i]))
	}

	return &models.ListJobsResponse{
		Jobs: views,
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
		},
	}, nil
}

func jobView(job *models.GenerationJob) *models.JobView {
	return &models.JobView{
		JobUID:           job.UID,
		EventID:          job.EventID,
		Status:           job.Status,
		TicketsCount:     job.TicketsCount,
		TicketsProcessed: job.TicketsProcessed,
		Summary:          job.Details.Summary,
		ProcessingTimeMS: job.Details.ProcessingTimeMS,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		Warnings:         job.Details.Warnings,
	}
}

var _ JobStore = (*repository.JobRepository)(nil)
