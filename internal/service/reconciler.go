package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"tessera/internal/apperrors"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/monitoring"
	"tessera/internal/repository"
)

// ResultApplier is the job repository surface the reconciler uses
type ResultApplier interface {
	ApplyResult(ctx context.Context, msg *models.ResultMessage) (bool, error)
}

// Reconciler folds renderer results back into job rows. It serves both
// the result queue consumer and the webhook endpoint, so Apply must be
// idempotent: replays and orphans acknowledge cleanly.
type Reconciler struct {
	jobs ResultApplier
}

func NewReconciler(jobs ResultApplier) *Reconciler {
	return &Reconciler{jobs: jobs}
}

// HandleMessage adapts Apply to the queue handler signature
func (r *Reconciler) HandleMessage(ctx context.Context, payload []byte) error {
	var msg models.ResultMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		// Malformed results can never succeed on redelivery
		logger.WithContext(ctx).Error("dropping malformed result message", slog.Any("error", err))
		return nil
	}
	return r.Apply(ctx, &msg)
}

// Apply records one result message. Returns nil for orphans and terminal
// replays so the queue acknowledges them instead of retrying.
func (r *Reconciler) Apply(ctx context.Context, msg *models.ResultMessage) error {
	if msg.JobUID == "" {
		logger.WithContext(ctx).Warn("result message without job uid dropped")
		return nil
	}

	applied, err := r.jobs.ApplyResult(ctx, msg)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			// Orphan: the renderer reported a job this deployment never
			// created. Retrying cannot help.
			logger.WithContext(ctx).Warn("orphan result acknowledged",
				slog.String("job_uid", msg.JobUID), slog.String("status", msg.Status))
			return nil
		}
		if apperrors.IsKind(err, apperrors.KindValidation) {
			logger.WithContext(ctx).Error("invalid result message dropped",
				slog.String("job_uid", msg.JobUID), slog.Any("error", err))
			return nil
		}
		return err
	}

	if applied {
		monitoring.TrackJobTransition(msg.Status)
		logger.WithContext(ctx).Info("job result applied",
			slog.String("job_uid", msg.JobUID), slog.String("status", msg.Status))
	} else {
		logger.WithContext(ctx).Info("terminal job replay acknowledged",
			slog.String("job_uid", msg.JobUID), slog.String("status", msg.Status))
	}
	return nil
}

var _ ResultApplier = (*repository.JobRepository)(nil)
