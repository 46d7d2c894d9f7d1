// internal/cleanup/sweeper_test.go
package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezlab-notifier/internal/common/config"
	"ezlab-notifier/internal/common/logger"
)

type fakeDeleter struct {
	calls   int
	deleted int64
}

func (f *fakeDeleter) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	return f.deleted, nil
}

func newTestSweeper(t *testing.T) (*Sweeper, *fakeDeleter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	deleter := &fakeDeleter{deleted: 7}
	s := NewSweeper(deleter, rdb, config.CleanupConfig{
		Schedule:  "0 2 * * *",
		LockTTLMs: 300000,
	}, logger.NewNop())
	return s, deleter, mr
}

func TestSweep_DeletesWhenLockFree(t *testing.T) {
	s, deleter, _ := newTestSweeper(t)

	deleted := s.Sweep(context.Background())
	assert.Equal(t, int64(7), deleted)
	assert.Equal(t, 1, deleter.calls)
}

func TestSweep_SingleFlightAcrossInstances(t *testing.T) {
	s, deleter, mr := newTestSweeper(t)

	assert.Equal(t, int64(7), s.Sweep(context.Background()))
	assert.Equal(t, int64(0), s.Sweep(context.Background()), "second sweep loses the lease")
	assert.Equal(t, 1, deleter.calls)

	// The lease expires, the next scheduled run may sweep again.
	mr.FastForward(6 * time.Minute)
	assert.Equal(t, int64(7), s.Sweep(context.Background()))
	assert.Equal(t, 2, deleter.calls)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s, _, _ := newTestSweeper(t)
	s.cfg.Schedule = "not a schedule"
	require.Error(t, s.Start())
}
