// internal/cleanup/sweeper.go

// Package cleanup runs the scheduled notification expiry sweep. A Redis
// lease lock keeps the sweep single-flight across process instances.
package cleanup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"ezlab-notifier/internal/common/config"
	"ezlab-notifier/internal/common/logger"
)

const lockKey = "cleanup:expiry-sweep:lock"

// ExpiredDeleter removes notifications past their expiry.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper schedules and runs the expiry sweep.
type Sweeper struct {
	store ExpiredDeleter
	rdb   *redis.Client
	cron  *cron.Cron
	cfg   config.CleanupConfig
	log   logger.Logger
}

func NewSweeper(store ExpiredDeleter, rdb *redis.Client, cfg config.CleanupConfig, log logger.Logger) *Sweeper {
	return &Sweeper{
		store: store,
		rdb:   rdb,
		cron:  cron.New(),
		cfg:   cfg,
		log:   log.WithFields(map[string]interface{}{"component": "cleanup"}),
	}
}

// Start registers the cron entry and begins the schedule.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.LockTTLMs)*time.Millisecond)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("expiry sweep scheduled", map[string]interface{}{
		"schedule": s.cfg.Schedule,
	})
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep deletes expired notifications if this instance wins the lease.
// Also the manual trigger. Returns the number of rows deleted; zero when
// another instance holds the lock.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	if !s.acquireLock(ctx) {
		s.log.Debug("sweep lock held elsewhere, skipping", nil)
		return 0
	}

	deleted, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Error("expiry sweep failed", map[string]interface{}{"error": err})
		return 0
	}

	s.log.Info("expiry sweep complete", map[string]interface{}{
		"deleted": deleted,
	})
	return deleted
}

// acquireLock takes the lease with SET NX. The lock is not released on
// completion: the TTL doubles as a minimum spacing between sweeps, so a
// crashed holder cannot wedge the schedule for longer than one lease.
func (s *Sweeper) acquireLock(ctx context.Context) bool {
	ttl := time.Duration(s.cfg.LockTTLMs) * time.Millisecond
	ok, err := s.rdb.SetNX(ctx, lockKey, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		s.log.Error("sweep lock check failed", map[string]interface{}{"error": err})
		return false
	}
	return ok
}
