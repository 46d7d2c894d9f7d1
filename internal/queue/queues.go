// internal/queue/queues.go
package queue

import (
	"context"
	"time"

	"ezlab-notifier/internal/common/config"
	"ezlab-notifier/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Queues bundles the three pipeline queues with their rate limiters.
type Queues struct {
	Coordination *Queue
	Push         *Queue
	Email        *Queue

	PushLimiter  *RateLimiter
	EmailLimiter *RateLimiter
}

// NewQueues builds the coordination, push and email queues from config.
// Rate limiters exist only for the push and email queues; the coordination
// queue is throttled upstream by the bulk batch stagger.
func NewQueues(rdb *redis.Client, cfg config.QueuesConfig, log logger.Logger) *Queues {
	q := &Queues{
		Coordination: New(QueueCoordination, rdb, cfg.Coordination, log),
		Push:         New(QueuePush, rdb, cfg.Push, log),
		Email:        New(QueueEmail, rdb, cfg.Email, log),
	}
	if cfg.Push.RateLimit > 0 {
		q.PushLimiter = NewRateLimiter(rdb, QueuePush, cfg.Push.RateLimit,
			time.Duration(cfg.Push.RateWindowMs)*time.Millisecond, log)
	}
	if cfg.Email.RateLimit > 0 {
		q.EmailLimiter = NewRateLimiter(rdb, QueueEmail, cfg.Email.RateLimit,
			time.Duration(cfg.Email.RateWindowMs)*time.Millisecond, log)
	}
	return q
}

// AllStats reads a snapshot of every queue's counters, keyed by queue name.
func (q *Queues) AllStats(ctx context.Context) (map[string]*Stats, error) {
	out := make(map[string]*Stats, 3)
	for _, queue := range []*Queue{q.Coordination, q.Push, q.Email} {
		stats, err := queue.GetStats(ctx)
		if err != nil {
			return nil, err
		}
		out[queue.Name()] = stats
	}
	return out, nil
}
