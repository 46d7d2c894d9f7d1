// internal/queue/queue.go
//
// Package queue implements the three named, Redis-backed, at-least-once
// job queues of the dispatch pipeline. Each queue keeps one waiting list
// per priority level, a delayed sorted set for backoff and staggered jobs,
// and bounded completed/failed retention sets for inspection.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ezlab-notifier/internal/common/config"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	completedRetention = time.Hour
	failedRetention    = 24 * time.Hour

	// promoteBatch bounds how many due delayed jobs one pop promotes.
	promoteBatch = 100
)

var priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// Queue is one named job queue.
type Queue struct {
	name string
	rdb  *redis.Client
	cfg  config.QueueConfig
	log  logger.Logger
}

func New(name string, rdb *redis.Client, cfg config.QueueConfig, log logger.Logger) *Queue {
	return &Queue{
		name: name,
		rdb:  rdb,
		cfg:  cfg,
		log:  log.WithFields(map[string]interface{}{"queue": name}),
	}
}

func (q *Queue) Name() string { return q.name }

// Option customizes a single enqueue.
type Option func(*enqueueOptions)

type enqueueOptions struct {
	priority Priority
	delay    time.Duration
}

// WithPriority sets the queue priority level for the job.
func WithPriority(p Priority) Option {
	return func(o *enqueueOptions) { o.priority = p }
}

// WithDelay holds the job in the delayed set until the delay elapses.
func WithDelay(d time.Duration) Option {
	return func(o *enqueueOptions) { o.delay = d }
}

// ResolveOptions applies opts over the defaults and returns the effective
// priority and delay. Fakes standing in for a queue use it to see what a
// caller asked for.
func ResolveOptions(opts ...Option) (Priority, time.Duration) {
	o := enqueueOptions{priority: PriorityNormal}
	for _, opt := range opts {
		opt(&o)
	}
	return o.priority, o.delay
}

// Enqueue persists a job envelope and makes it available to workers,
// immediately or after an optional delay.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, opts ...Option) (*Job, error) {
	priority, delay := ResolveOptions(opts...)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	job := &Job{
		ID:          uuid.New().String(),
		Queue:       q.name,
		Priority:    priority,
		Payload:     raw,
		MaxAttempts: q.cfg.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}

	if err := q.saveJob(ctx, job, 0); err != nil {
		return nil, err
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		if err := q.rdb.ZAdd(ctx, q.key("delayed"), redis.Z{Score: readyAt, Member: job.ID}).Err(); err != nil {
			return nil, fmt.Errorf("enqueue delayed job: %w", err)
		}
	} else {
		if err := q.rdb.RPush(ctx, q.waitingKey(job.Priority), job.ID).Err(); err != nil {
			return nil, fmt.Errorf("enqueue job: %w", err)
		}
	}

	metrics.QueueJobsEnqueued.WithLabelValues(q.name).Inc()
	return job, nil
}

// Pop promotes due delayed jobs and returns the next waiting job,
// respecting priority level before FIFO order. Returns nil when the queue
// is empty. The claim is an LMove into the active list, so a job id is
// always in some Redis structure; a worker that dies mid-handler leaves
// the id in active for RecoverActive to re-queue.
func (q *Queue) Pop(ctx context.Context) (*Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		q.log.Warn("delayed promotion failed", map[string]interface{}{"error": err})
	}

	for _, p := range priorities {
		id, err := q.rdb.LMove(ctx, q.waitingKey(p), q.key("active"), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pop job: %w", err)
		}

		job, err := q.loadJob(ctx, id)
		if err != nil {
			// Envelope expired out from under the id; drop it.
			q.log.Warn("job envelope missing, skipping", map[string]interface{}{"jobId": id})
			q.rdb.LRem(ctx, q.key("active"), 1, id)
			continue
		}
		return job, nil
	}
	return nil, nil
}

// RecoverActive re-queues jobs a previous run claimed but never settled,
// putting each at the front of its priority's waiting list. Run once at
// startup, before workers pop. A job another live instance is still
// processing gets re-queued too; delivery is at least once, not exactly
// once.
func (q *Queue) RecoverActive(ctx context.Context) (int64, error) {
	var recovered int64
	for {
		id, err := q.rdb.LPop(ctx, q.key("active")).Result()
		if errors.Is(err, redis.Nil) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("recover active jobs: %w", err)
		}

		job, err := q.loadJob(ctx, id)
		if err != nil {
			q.log.Warn("stale active id without envelope, dropping", map[string]interface{}{"jobId": id})
			continue
		}
		if err := q.rdb.LPush(ctx, q.waitingKey(job.Priority), id).Err(); err != nil {
			return recovered, fmt.Errorf("re-queue active job %s: %w", id, err)
		}
		recovered++
	}
}

// promoteDelayed moves due jobs from the delayed set to their waiting
// lists. ZRem is the claim: whichever worker removes the member moves it.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue
		}
		if err := q.rdb.RPush(ctx, q.waitingKey(job.Priority), id).Err(); err != nil {
			q.log.Error("failed to promote delayed job", map[string]interface{}{
				"jobId": id,
				"error": err,
			})
		}
	}
	return nil
}

// Complete moves a job into the bounded completed retention set.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := time.Now()
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key("active"), 1, job.ID)
	pipe.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	pipe.ZRemRangeByScore(ctx, q.key("completed"), "-inf", fmt.Sprintf("%d", now.Add(-completedRetention).UnixMilli()))
	pipe.Expire(ctx, q.jobKey(job.ID), completedRetention)
	_, err := pipe.Exec(ctx)

	metrics.QueueJobsCompleted.WithLabelValues(q.name).Inc()
	return err
}

// Retry schedules the job's next attempt with exponential backoff:
// base * 2^(attempts-1).
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) error {
	job.LastError = cause.Error()

	backoff := time.Duration(q.cfg.BackoffBaseMs) * time.Millisecond
	for i := 1; i < job.Attempts; i++ {
		backoff *= 2
	}

	if err := q.saveJob(ctx, job, 0); err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(backoff).UnixMilli())
	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: readyAt, Member: job.ID})
	pipe.LRem(ctx, q.key("active"), 1, job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Defer pushes a job back into the delayed set without consuming an
// attempt. Used by the rate limiter: a deferred job is never dropped.
func (q *Queue) Defer(ctx context.Context, job *Job, delay time.Duration) error {
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: readyAt, Member: job.ID})
	pipe.LRem(ctx, q.key("active"), 1, job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Fail moves a job to the failed set, retained for a bounded period for
// inspection rather than deleted.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	job.LastError = cause.Error()
	if err := q.saveJob(ctx, job, failedRetention); err != nil {
		return err
	}

	now := time.Now()
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key("active"), 1, job.ID)
	pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	pipe.ZRemRangeByScore(ctx, q.key("failed"), "-inf", fmt.Sprintf("%d", now.Add(-failedRetention).UnixMilli()))
	_, err := pipe.Exec(ctx)
	return err
}

// Stats is a point-in-time snapshot of the queue's counters.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// GetStats reads the queue counters.
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	for _, p := range priorities {
		n, err := q.rdb.LLen(ctx, q.waitingKey(p)).Result()
		if err != nil {
			return nil, err
		}
		stats.Waiting += n
	}

	var err error
	if stats.Active, err = q.rdb.LLen(ctx, q.key("active")).Result(); err != nil {
		return nil, err
	}
	if stats.Delayed, err = q.rdb.ZCard(ctx, q.key("delayed")).Result(); err != nil {
		return nil, err
	}
	if stats.Completed, err = q.rdb.ZCard(ctx, q.key("completed")).Result(); err != nil {
		return nil, err
	}
	if stats.Failed, err = q.rdb.ZCard(ctx, q.key("failed")).Result(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// FailedJobs returns up to limit of the most recently failed jobs.
func (q *Queue) FailedJobs(ctx context.Context, limit int64) ([]*Job, error) {
	ids, err := q.rdb.ZRevRange(ctx, q.key("failed"), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ==========================
// Envelope persistence
// ==========================

func (q *Queue) saveJob(ctx context.Context, job *Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}
	return q.rdb.Set(ctx, q.jobKey(job.ID), raw, ttl).Err()
}

// SaveJob persists the current envelope state (attempt count, last error).
func (q *Queue) SaveJob(ctx context.Context, job *Job) error {
	return q.saveJob(ctx, job, 0)
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job envelope: %w", err)
	}
	return &job, nil
}

func (q *Queue) key(suffix string) string {
	return fmt.Sprintf("queue:%s:%s", q.name, suffix)
}

func (q *Queue) waitingKey(p Priority) string {
	return fmt.Sprintf("queue:%s:waiting:%d", q.name, p)
}

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("queue:%s:job:%s", q.name, id)
}
