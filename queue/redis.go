package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"property-scraper/models"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
)

const DefaultName = "scraping_jobs"

// RedisQueue keeps job ids in a Redis list: RPUSH to enqueue, LPOP to
// dequeue.
type RedisQueue struct {
	client *redis.Client
	name   string
	logger arbor.ILogger
}

func NewRedisQueue(url, name string, logger arbor.ILogger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if name == "" {
		name = DefaultName
	}
	return &RedisQueue{client: redis.NewClient(opts), name: name, logger: logger}, nil
}

func (q *RedisQueue) Connect(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return &models.QueueConnectionError{Op: "connect", Err: err}
	}
	q.logger.Info().Str("addr", q.client.Options().Addr).Str("queue", q.name).Msg("Connected to Redis queue")
	return nil
}

func (q *RedisQueue) Push(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, q.name, jobID).Err(); err != nil {
		return &models.QueueConnectionError{Op: "push", Err: err}
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	id, err := q.client.LPop(ctx, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", &models.QueueConnectionError{Op: "pop", Err: err}
	}
	return id, nil
}

// BlockingPop waits up to timeout for a job id.
func (q *RedisQueue) BlockingPop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", &models.QueueConnectionError{Op: "blpop", Err: err}
	}
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BLPOP reply %v", res)
	}
	return res[1], nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, &models.QueueConnectionError{Op: "len", Err: err}
	}
	return n, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
