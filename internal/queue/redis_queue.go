package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"itinerary-planner/internal/models"
)

// RedisQueue hands generation tasks from the API process to worker processes through a Redis list.
// Delivery is at most once: a task popped by a worker that then crashes is not redelivered.
type RedisQueue struct {
	client   *redis.Client
	readyKey string
	deadKey  string
}

// NewRedisQueue builds a queue named name on client.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	if name == "" {
		name = "queue:itinerary"
	}
	return &RedisQueue{
		client:   client,
		readyKey: name + ":ready",
		deadKey:  name + ":dead",
	}
}

// Dispatch appends the task to the ready list.
func (q *RedisQueue) Dispatch(ctx context.Context, task models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.RPush(ctx, q.readyKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.JobID, err)
	}
	return nil
}

// Dequeue waits up to timeout for the next task. It returns ok=false when none arrived.
// Undecodable entries are moved to the dead list and reported as an error.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (models.Task, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.Task{}, false, nil
	}
	if err != nil {
		return models.Task{}, false, err
	}
	if len(res) != 2 {
		return models.Task{}, false, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}

	var task models.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil || task.JobID == "" {
		_ = q.client.RPush(ctx, q.deadKey, res[1]).Err()
		return models.Task{}, false, fmt.Errorf("undecodable task moved to %s", q.deadKey)
	}
	return task, true, nil
}

// ReadyDepth returns how many tasks are waiting.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

// DeadPeek reads up to count raw entries from the dead list.
func (q *RedisQueue) DeadPeek(ctx context.Context, count int64) ([]string, error) {
	return q.client.LRange(ctx, q.deadKey, 0, count-1).Result()
}
