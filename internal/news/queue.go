package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketlens/marketlens/internal/config"
)

// ClassifyJob is one queued analysis request. Producers push the title
// and body along with the id so the worker can analyze without a DB
// round trip.
type ClassifyJob struct {
	ArticleID int64  `json:"article_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// Queue is the Redis list carrying classification jobs from crawlers to
// the analysis worker.
type Queue struct {
	client  *redis.Client
	name    string
	popWait time.Duration
}

// NewQueue connects to Redis using a redis:// URL.
func NewQueue(cfg config.RedisConfig) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	popWait := cfg.PopWait
	if popWait <= 0 {
		popWait = 5 * time.Second
	}
	return &Queue{
		client:  redis.NewClient(opts),
		name:    cfg.QueueName,
		popWait: popWait,
	}, nil
}

// Name reports the Redis list key the queue uses.
func (q *Queue) Name() string { return q.name }

// Enqueue pushes a job and returns the resulting queue length.
func (q *Queue) Enqueue(ctx context.Context, job ClassifyJob) (int64, error) {
	if job.ArticleID == 0 {
		return 0, errors.New("article id is required")
	}
	job.Title = strings.TrimSpace(job.Title)
	job.Content = strings.TrimSpace(job.Content)
	if job.Title == "" && job.Content == "" {
		return 0, errors.New("nothing to enqueue: title and content are empty")
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("failed to encode job: %w", err)
	}

	n, err := q.client.LPush(ctx, q.name, raw).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return n, nil
}

// Dequeue blocks up to the configured wait for the next job. A nil job
// with a nil error means the wait elapsed with the queue empty.
func (q *Queue) Dequeue(ctx context.Context) (*ClassifyJob, error) {
	vals, err := q.client.BRPop(ctx, q.popWait, q.name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}
	if len(vals) < 2 {
		return nil, nil
	}

	var job ClassifyJob
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Len reports the number of waiting jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
