// internal/queue/ratelimit.go
package queue

import (
	"context"
	"fmt"
	"time"

	"ezlab-notifier/internal/common/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a per-queue max-jobs-per-rolling-window limit with
// a sliding window: each grant is a timestamped member of a sorted set and
// only grants inside the trailing window count, so a burst cannot exceed
// the limit across a window boundary. The set lives in Redis so the limit
// is global to the queue across all workers and all process instances,
// not per worker.
type RateLimiter struct {
	rdb    *redis.Client
	key    string
	limit  int
	window time.Duration
	log    logger.Logger

	now func() time.Time
}

func NewRateLimiter(rdb *redis.Client, queueName string, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		key:    fmt.Sprintf("queue:%s:ratelimit", queueName),
		limit:  limit,
		window: window,
		log:    log.WithFields(map[string]interface{}{"queue": queueName}),
		now:    time.Now,
	}
}

// Allow consumes one slot from the trailing window and reports whether
// the caller may proceed. A rejected call gives its slot back, so denied
// attempts do not starve the window. Fails open: if Redis is unreachable
// the job runs rather than stalling the queue on the limiter.
func (l *RateLimiter) Allow(ctx context.Context) bool {
	now := l.now()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, l.key, "-inf", fmt.Sprintf("%d", now.Add(-l.window).UnixMilli()))
	pipe.ZAdd(ctx, l.key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	count := pipe.ZCard(ctx, l.key)
	pipe.Expire(ctx, l.key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limit check failed, allowing", map[string]interface{}{"error": err})
		return true
	}

	if count.Val() > int64(l.limit) {
		if err := l.rdb.ZRem(ctx, l.key, member).Err(); err != nil {
			l.log.Error("rate limit slot release failed", map[string]interface{}{"error": err})
		}
		return false
	}
	return true
}

// RetryDelay is how long a deferred job waits before its next attempt to
// claim a slot: the time until the oldest grant slides out of the window.
func (l *RateLimiter) RetryDelay(ctx context.Context) time.Duration {
	oldest, err := l.rdb.ZRangeWithScores(ctx, l.key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return time.Second
	}
	d := time.UnixMilli(int64(oldest[0].Score)).Add(l.window).Sub(l.now())
	if d <= 0 {
		return time.Second
	}
	return d
}
