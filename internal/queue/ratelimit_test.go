// internal/queue/ratelimit_test.go
package queue

import (
	"context"
	"testing"
	"time"

	"ezlab-notifier/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, queueName string, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRateLimiter(rdb, queueName, limit, window, logger.NewNop()), mr
}

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(t, "fcm", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow(ctx), "limit exhausted, request must be deferred")
	assert.False(t, l.Allow(ctx))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	l, _ := newTestLimiter(t, "email", 1, time.Minute)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow(ctx))
	assert.False(t, l.Allow(ctx))

	l.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	assert.True(t, l.Allow(ctx), "the grant should have slid out of the window")
}

func TestRateLimiter_NoBurstAcrossWindowBoundary(t *testing.T) {
	l, _ := newTestLimiter(t, "fcm", 3, time.Minute)
	ctx := context.Background()

	base := time.Now()

	// Exhaust the limit just before the minute mark.
	l.now = func() time.Time { return base.Add(55 * time.Second) }
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx))
	}

	// A fixed window would reopen here; the trailing window still holds
	// all three grants.
	l.now = func() time.Time { return base.Add(65 * time.Second) }
	assert.False(t, l.Allow(ctx), "grants 10s old must still count against the window")

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.True(t, l.Allow(ctx))
}

func TestRateLimiter_RejectedCallReleasesSlot(t *testing.T) {
	l, _ := newTestLimiter(t, "fcm", 1, time.Minute)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow(ctx))
	for i := 0; i < 5; i++ {
		assert.False(t, l.Allow(ctx))
	}

	// Only the one granted slot occupies the window; once it slides out
	// the denied retries must not have extended the wait.
	l.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	assert.True(t, l.Allow(ctx))
}

func TestRateLimiter_RetryDelayTracksOldestGrant(t *testing.T) {
	l, _ := newTestLimiter(t, "fcm", 1, 30*time.Second)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow(ctx))

	l.now = func() time.Time { return base.Add(10 * time.Second) }
	delay := l.RetryDelay(ctx)
	assert.InDelta(t, float64(20*time.Second), float64(delay), float64(time.Second))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t, "fcm", 1, time.Minute)
	mr.Close()

	assert.True(t, l.Allow(context.Background()), "unreachable limiter must not block jobs")
}
