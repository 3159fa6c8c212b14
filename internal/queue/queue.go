// Package queue provides the Redis-backed job queue used to hand email
// deliveries to the worker process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrEmpty is returned by Dequeue when no job arrived within the wait window.
var ErrEmpty = errors.New("queue empty")

// Queue pushes and pops JSON-encoded jobs on a Redis list.
type Queue struct {
	client *redis.Client
	name   string
}

// New connects to Redis at the given URL and binds to the named list. The
// connection is verified with a ping so callers can fall back early when the
// broker is down.
func New(ctx context.Context, url, name string) (*Queue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Queue{client: client, name: name}, nil
}

// Enqueue pushes the job onto the list.
func (q *Queue) Enqueue(ctx context.Context, job interface{}) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks up to wait for the next job and decodes it into dst.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration, dst interface{}) error {
	res, err := q.client.BRPop(ctx, wait, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrEmpty
		}
		return fmt.Errorf("dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return fmt.Errorf("dequeue: unexpected reply length %d", len(res))
	}
	if err := json.Unmarshal([]byte(res[1]), dst); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	return nil
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
