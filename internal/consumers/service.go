// Package consumers runs the durable queue subscribers as their own
// long-lived process, separate from the HTTP API.
package consumers

import (
	"context"
	"log/slog"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/database"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/service"
)

// ConsumerService owns the connections and subscriptions of the worker
// process
type ConsumerService struct {
	db    *database.DB
	queue *messaging.Queue
	cache *cache.Client
	repos *repository.Repositories
	svc   *service.Services
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	cacheClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}

	queue, err := messaging.Connect(cfg.Queue, cacheClient)
	if err != nil {
		return nil, err
	}

	repos := repository.NewRepositories(db)
	svc := service.NewServices(repos, queue, cfg)

	return &ConsumerService{
		db:    db,
		queue: queue,
		cache: cacheClient,
		repos: repos,
		svc:   svc,
	}, nil
}

// Start subscribes the reconciler to the result queue. Results that keep
// failing after the redelivery budget land in the failure handler, which
// marks the job failed so it does not stay processing forever.
func (cs *ConsumerService) Start() error {
	slog.Info("Starting queue consumers...")

	_, err := cs.queue.Consume(models.QueueGenerationResults, "reconciler",
		cs.svc.Reconciler.HandleMessage, cs.handleResultFailure)
	if err != nil {
		return err
	}

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) handleResultFailure(payload []byte, reason error) {
	ctx := context.Background()

	uid := messaging.PeekJobUID(payload)
	if uid == "" {
		logger.Get().Error("result message exhausted retries, no job uid",
			slog.Any("error", reason))
		return
	}

	logger.Get().Error("result message exhausted retries, failing job",
		slog.String("job_uid", uid), slog.Any("error", reason))

	if err := cs.repos.Jobs.MarkFailed(ctx, uid, "result_processing_error"); err != nil {
		logger.Get().Error("could not mark job failed after retry exhaustion",
			slog.String("job_uid", uid), slog.Any("error", err))
	}
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.queue != nil {
		if err := cs.queue.Close(); err != nil {
			slog.Error("error closing queue connection", "error", err)
		}
	}
	if cs.cache != nil {
		if err := cs.cache.Close(); err != nil {
			slog.Error("error closing redis connection", "error", err)
		}
	}
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}
