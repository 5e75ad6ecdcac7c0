package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps the redis connection used for queue bookkeeping: the enqueue
// idempotency window and per-queue state counters.
type Client struct {
	rdb *redis.Client
}

func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing connection. Used by tests to inject
// a mock.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func idempotencyKey(queue, key string) string {
	return fmt.Sprintf("queue:%s:idem:%s", queue, key)
}

func statesKey(queue string) string {
	return fmt.Sprintf("queue:%s:states", queue)
}

func retentionKey(queue, outcome string) string {
	return fmt.Sprintf("queue:%s:%s", queue, outcome)
}

// ReserveIdempotencyKey claims key for the given window. Returns false when
// the key is already held, meaning the same work is in flight or recently
// completed.
func (c *Client) ReserveIdempotencyKey(ctx context.Context, queue, key string, window time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(queue, key), time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency reservation failed: %w", err)
	}
	return ok, nil
}

// ReleaseIdempotencyKey drops a reservation, e.g. after a publish that never
// made it to the broker.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, queue, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(queue, key)).Err()
}

// IncrState bumps a per-queue state counter (waiting/active/completed/failed/delayed)
func (c *Client) IncrState(ctx context.Context, queue, state string, delta int64) error {
	return c.rdb.HIncrBy(ctx, statesKey(queue), state, delta).Err()
}

// GetStates returns all state counters for a queue
func (c *Client) GetStates(ctx context.Context, queue string) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, statesKey(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("state counters lookup failed: %w", err)
	}

	states := make(map[string]int64, len(raw))
	for state, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			states[state] = n
		}
	}
	return states, nil
}

// RecordOutcome appends a completion/failure record for a queue, trimmed to
// cap entries so retained history stays bounded.
func (c *Client) RecordOutcome(ctx context.Context, queue, outcome, key string, keep int64) error {
	listKey := retentionKey(queue, outcome)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, listKey, key)
	pipe.LTrim(ctx, listKey, 0, keep-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
