package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/stan.go"

	"tessera/internal/apperrors"
	"tessera/internal/cache"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/monitoring"
)

// Queue state names tracked in redis and exposed as metrics
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateDelayed   = "delayed"
)

// idempotencyWindow covers in-flight plus recently-completed work: a second
// enqueue with the same key inside this window is suppressed.
const idempotencyWindow = time.Hour

const ackWait = 30 * time.Second

type Config struct {
	URL       string
	ClusterID string
	ClientID  string

	// Default retry policy for enqueued work
	Attempts int
	Backoff  time.Duration

	// Retention caps for completed/failed records
	MaxKeptCompleted int
	MaxKeptFailed    int
}

// EnqueueOptions override the queue defaults per message
type EnqueueOptions struct {
	IdempotencyKey string
	Priority       int
	Attempts       int
	Backoff        time.Duration
}

// envelope wraps every message so consumers see the retry policy and
// priority the producer asked for. NATS Streaming delivers in order;
// priority is advisory metadata.
type envelope struct {
	Priority   int             `json:"priority"`
	Attempts   int             `json:"attempts"`
	BackoffMS  int64           `json:"backoff_ms"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Handler processes one delivered payload. Delivery is at-least-once, so
// handlers must be idempotent.
type Handler func(ctx context.Context, payload []byte) error

// FailureHandler is invoked once a message exhausts its attempts
type FailureHandler func(payload []byte, reason error)

// Queue is a durable work queue over NATS Streaming with an idempotency
// window kept in redis.
type Queue struct {
	conn  stan.Conn
	cache *cache.Client
	cfg   Config
}

func Connect(cfg Config, cacheClient *cache.Client) (*Queue, error) {
	conn, err := stan.Connect(cfg.ClusterID, cfg.ClientID, stan.NatsURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	logger.Get().Info("Connected to queue broker",
		"url", cfg.URL, "cluster", cfg.ClusterID, "client", cfg.ClientID)

	return &Queue{conn: conn, cache: cacheClient, cfg: cfg}, nil
}

// NewWithConn builds a Queue around an existing connection. Used by tests.
func NewWithConn(conn stan.Conn, cacheClient *cache.Client, cfg Config) *Queue {
	return &Queue{conn: conn, cache: cacheClient, cfg: cfg}
}

// Enqueue publishes payload to the named queue. When an idempotency key is
// given, a duplicate inside the window is suppressed and reported as
// success. Publish failures are retried per the options, then surfaced as a
// transient error.
func (q *Queue) Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) error {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = q.cfg.Attempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = q.cfg.Backoff
	}

	if opts.IdempotencyKey != "" {
		reserved, err := q.cache.ReserveIdempotencyKey(ctx, queue, opts.IdempotencyKey, idempotencyWindow)
		if err != nil {
			return apperrors.Wrap(apperrors.KindTransient, apperrors.CodeQueueError,
				"idempotency window unavailable", err)
		}
		if !reserved {
			logger.WithContext(ctx).Warn("Duplicate enqueue suppressed",
				"queue", queue, "idempotency_key", opts.IdempotencyKey)
			monitoring.TrackQueueOperation(queue, "enqueue", "duplicate")
			return nil
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, apperrors.CodeQueueError,
			"failed to marshal queue payload", err)
	}

	data, err := json.Marshal(envelope{
		Priority:   opts.Priority,
		Attempts:   attempts,
		BackoffMS:  backoff.Milliseconds(),
		EnqueuedAt: time.Now().UTC(),
		Payload:    raw,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, apperrors.CodeQueueError,
			"failed to marshal queue envelope", err)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = q.conn.Publish(queue, data); lastErr == nil {
			break
		}

		monitoring.TrackQueueOperation(queue, "enqueue", "retry")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(backoffDelay(backoff, attempt)):
				continue
			}
		}
		break
	}

	if lastErr != nil {
		if opts.IdempotencyKey != "" {
			if relErr := q.cache.ReleaseIdempotencyKey(ctx, queue, opts.IdempotencyKey); relErr != nil {
				logger.WithContext(ctx).Error("Failed to release idempotency key",
					"queue", queue, "idempotency_key", opts.IdempotencyKey, "error", relErr)
			}
		}
		monitoring.TrackQueueOperation(queue, "enqueue", "error")
		return apperrors.Wrap(apperrors.KindTransient, apperrors.CodeQueueError,
			fmt.Sprintf("publish to %s failed after %d attempts", queue, attempts), lastErr)
	}

	if err := q.cache.IncrState(ctx, queue, StateWaiting, 1); err != nil {
		logger.WithContext(ctx).Warn("Failed to bump waiting counter", "queue", queue, "error", err)
	}
	monitoring.TrackQueueOperation(queue, "enqueue", "ok")

	logger.WithContext(ctx).Info("Enqueued message",
		"queue", queue, "idempotency_key", opts.IdempotencyKey, "priority", opts.Priority)
	return nil
}

// Consume subscribes the durable queue group to the named queue. Delivery is
// at-least-once: a handler error leaves the message unacked for redelivery
// until the attempt cap, then onFailure runs and the message is dropped.
func (q *Queue) Consume(queue, group string, handler Handler, onFailure FailureHandler) (stan.Subscription, error) {
	msgHandler := func(m *stan.Msg) {
		ctx := context.Background()

		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			logger.Get().Error("Dropping malformed queue message", "queue", queue, "error", err)
			monitoring.TrackQueueOperation(queue, "consume", "malformed")
			m.Ack()
			return
		}

		attempts := env.Attempts
		if attempts <= 0 {
			attempts = q.cfg.Attempts
		}

		if m.Redelivered {
			q.moveState(ctx, queue, StateDelayed, StateActive)
		} else {
			q.moveState(ctx, queue, StateWaiting, StateActive)
		}

		err := handler(ctx, env.Payload)
		if err == nil {
			m.Ack()
			q.moveState(ctx, queue, StateActive, StateCompleted)
			q.recordOutcome(ctx, queue, StateCompleted)
			monitoring.TrackQueueOperation(queue, "consume", "ok")
			return
		}

		delivery := int(m.RedeliveryCount) + 1
		if delivery >= attempts {
			logger.Get().Error("Message failed permanently",
				"queue", queue, "deliveries", delivery, "error", err)
			m.Ack()
			q.moveState(ctx, queue, StateActive, StateFailed)
			q.recordOutcome(ctx, queue, StateFailed)
			monitoring.TrackQueueOperation(queue, "consume", "failed")
			if onFailure != nil {
				onFailure(env.Payload, err)
			}
			return
		}

		// No ack: the broker redelivers after AckWait
		logger.Get().Warn("Message handling failed, awaiting redelivery",
			"queue", queue, "delivery", delivery, "max_attempts", attempts, "error", err)
		q.moveState(ctx, queue, StateActive, StateDelayed)
		monitoring.TrackQueueOperation(queue, "consume", "retry")
	}

	sub, err := q.conn.QueueSubscribe(queue, group, msgHandler,
		stan.DurableName(queue+"-"+group+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(ackWait),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to %s: %w", queue, err)
	}

	logger.Get().Info("Subscribed to queue", "queue", queue, "group", group)
	return sub, nil
}

// Stats returns the queue's per-state counts
func (q *Queue) Stats(ctx context.Context, queue string) (*models.QueueView, error) {
	states, err := q.cache.GetStates(ctx, queue)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, apperrors.CodeQueueError,
			"queue stats unavailable", err)
	}

	view := &models.QueueView{
		Waiting:   states[StateWaiting],
		Active:    states[StateActive],
		Completed: states[StateCompleted],
		Failed:    states[StateFailed],
		Delayed:   states[StateDelayed],
	}

	for state, n := range states {
		monitoring.SetQueueDepth(queue, state, n)
	}

	return view, nil
}

func (q *Queue) moveState(ctx context.Context, queue, from, to string) {
	if err := q.cache.IncrState(ctx, queue, from, -1); err != nil {
		logger.Get().Warn("Failed to decrement state counter", "queue", queue, "state", from, "error", err)
	}
	if err := q.cache.IncrState(ctx, queue, to, 1); err != nil {
		logger.Get().Warn("Failed to increment state counter", "queue", queue, "state", to, "error", err)
	}
}

func (q *Queue) recordOutcome(ctx context.Context, queue, outcome string) {
	keep := int64(q.cfg.MaxKeptCompleted)
	if outcome == StateFailed {
		keep = int64(q.cfg.MaxKeptFailed)
	}
	if err := q.cache.RecordOutcome(ctx, queue, outcome, time.Now().UTC().Format(time.RFC3339Nano), keep); err != nil {
		logger.Get().Warn("Failed to record queue outcome", "queue", queue, "outcome", outcome, "error", err)
	}
}

// PeekJobUID extracts the job uid from a payload without decoding the
// whole message. Returns "" when the payload has none.
func PeekJobUID(payload []byte) string {
	var head struct {
		JobUID string `json:"job_uid"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return ""
	}
	return head.JobUID
}

// backoffDelay doubles per attempt starting from base
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (q *Queue) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
