// internal/queue/worker.go
package queue

import (
	"context"
	"sync"
	"time"

	apperrors "ezlab-notifier/internal/common/errors"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/metrics"
)

// HandlerFunc processes one job. A nil return completes the job; an error
// either retries it with backoff (retryable, attempts remaining) or moves
// it to the failed state.
type HandlerFunc func(ctx context.Context, job *Job) error

// WorkerPool runs a bounded number of concurrent workers against one
// queue. Within the queue, jobs may complete out of FIFO order once
// concurrency > 1, but priority level is always respected at pop time.
type WorkerPool struct {
	queue       *Queue
	handler     HandlerFunc
	concurrency int
	poll        time.Duration
	limiter     *RateLimiter // nil disables rate limiting
	log         logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorkerPool(q *Queue, handler HandlerFunc, concurrency int, poll time.Duration, limiter *RateLimiter, log logger.Logger) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		queue:       q,
		handler:     handler,
		concurrency: concurrency,
		poll:        poll,
		limiter:     limiter,
		log:         log.WithFields(map[string]interface{}{"queue": q.Name()}),
	}
}

// Start re-queues jobs a previous run left in flight, then launches the
// worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	if n, err := p.queue.RecoverActive(ctx); err != nil {
		p.log.Error("active job recovery failed", map[string]interface{}{"error": err})
	} else if n > 0 {
		p.log.Warn("re-queued jobs left in flight by a previous run", map[string]interface{}{
			"recovered": n,
		})
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.log.Info("worker pool started", map[string]interface{}{
		"concurrency": p.concurrency,
	})
}

// Stop signals the workers and waits for in-flight jobs to finish. Jobs
// are never cancelled mid-send; they only stop at job boundaries.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("worker pool stopped", nil)
}

func (p *WorkerPool) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			p.log.Error("pop failed", map[string]interface{}{"error": err})
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		// A job claimed past the rate limit goes back to the delayed set
		// without consuming an attempt: the limiter defers, never drops.
		if p.limiter != nil && !p.limiter.Allow(ctx) {
			metrics.QueueRateLimitDeferred.WithLabelValues(p.queue.Name()).Inc()
			rlErr := apperrors.NewRateLimitExceededError(p.queue.Name())
			p.log.Warn("rate limit exceeded, deferring job", map[string]interface{}{
				"jobId": job.ID,
				"code":  string(apperrors.CodeOf(rlErr)),
			})
			if err := p.queue.Defer(ctx, job, p.limiter.RetryDelay(ctx)); err != nil {
				p.log.Error("defer failed", map[string]interface{}{"jobId": job.ID, "error": err})
			}
			continue
		}

		p.process(ctx, job)
	}
}

func (p *WorkerPool) process(ctx context.Context, job *Job) {
	metrics.QueueJobsActive.WithLabelValues(p.queue.Name()).Inc()
	defer metrics.QueueJobsActive.WithLabelValues(p.queue.Name()).Dec()

	job.Attempts++
	if err := p.queue.SaveJob(ctx, job); err != nil {
		p.log.Error("failed to persist attempt count", map[string]interface{}{
			"jobId": job.ID,
			"error": err,
		})
	}

	start := time.Now()
	err := p.handler(ctx, job)
	metrics.QueueJobDuration.WithLabelValues(p.queue.Name()).Observe(time.Since(start).Seconds())

	if err == nil {
		if cerr := p.queue.Complete(ctx, job); cerr != nil {
			p.log.Error("complete failed", map[string]interface{}{"jobId": job.ID, "error": cerr})
		}
		return
	}

	if apperrors.IsRetryable(err) && job.Attempts < job.MaxAttempts {
		p.log.Warn("job failed, scheduling retry", map[string]interface{}{
			"jobId":   job.ID,
			"attempt": job.Attempts,
			"max":     job.MaxAttempts,
			"error":   err,
		})
		if rerr := p.queue.Retry(ctx, job, err); rerr != nil {
			p.log.Error("retry scheduling failed", map[string]interface{}{"jobId": job.ID, "error": rerr})
		}
		return
	}

	p.log.Error("job moved to failed state", map[string]interface{}{
		"jobId":    job.ID,
		"attempts": job.Attempts,
		"error":    err,
	})
	metrics.QueueJobsFailed.WithLabelValues(p.queue.Name(), string(apperrors.CodeOf(err))).Inc()
	if ferr := p.queue.Fail(ctx, job, err); ferr != nil {
		p.log.Error("fail recording failed", map[string]interface{}{"jobId": job.ID, "error": ferr})
	}
}

func (p *WorkerPool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.poll):
	}
}
