// cmd/notifier/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ezlab-notifier/internal/channels"
	"ezlab-notifier/internal/cleanup"
	"ezlab-notifier/internal/common/aws"
	"ezlab-notifier/internal/common/config"
	"ezlab-notifier/internal/common/database"
	"ezlab-notifier/internal/common/fcm"
	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/observability"
	"ezlab-notifier/internal/dispatch"
	"ezlab-notifier/internal/gateway"
	"ezlab-notifier/internal/presence"
	"ezlab-notifier/internal/queue"
	"ezlab-notifier/internal/replay"
	"ezlab-notifier/internal/store"
	"ezlab-notifier/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")

	zapLog.Info("Starting notifier...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	// Rebuild the logger with the configured level and format.
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New("notifier")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Schema & Template Registry ---
	if err := store.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	templateStore := store.NewTemplateStore(pg.DB, log)
	if _, err := registry.Seed(ctx, templateStore, log); err != nil {
		zapLog.Fatal("template seeding failed", zap.Error(err))
	}

	// --- Stores ---
	notificationStore := store.NewNotificationStore(pg.DB, log)
	tokenStore := store.NewTokenStore(pg.DB, log)
	userDirectory := store.NewUserDirectory(pg.DB, log)
	connectionStore := store.NewConnectionStore(pg.DB, log)

	// --- Delivery Channels ---
	var pushChannel dispatch.PushChannel
	if cfg.Channels.FCM.Enabled {
		var msgClient *messaging.Client
		err = retryWithBackoff(func() error {
			var err error
			msgClient, err = fcm.NewMessagingClient(ctx, cfg.Channels.FCM.CredentialsFile)
			return err
		}, 5, 2*time.Second, zapLog, "FCM client initialization")
		if err != nil {
			zapLog.Fatal("fcm client failed after retries", zap.Error(err))
		}
		pushChannel = channels.NewPushSender(msgClient, tokenStore, cfg.Channels.FCM, log)
		zapLog.Info("FCM client initialized")
	} else {
		pushChannel = &disabledPush{log: log}
		zapLog.Warn("FCM disabled, push jobs will be dropped")
	}

	var emailChannel dispatch.EmailChannel
	if cfg.Channels.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Channels.Email.AWSRegion)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		emailChannel = channels.NewEmailSender(sesClient, cfg.Channels.Email, log)
		zapLog.Info("SES client initialized")
	} else {
		emailChannel = &disabledEmail{log: log}
		zapLog.Warn("email disabled, email jobs will be dropped")
	}

	// --- Presence, Dispatch, Replay ---
	tracker := presence.NewTracker(connectionStore, userDirectory, log)
	socketSender := channels.NewSocketSender(tracker, log)

	queues := queue.NewQueues(rdb.Client, cfg.Queues, log)

	service := dispatch.NewService(
		userDirectory, templateStore, notificationStore, tokenStore,
		tracker, socketSender,
		queues.Coordination, queues.Push, queues.Email,
		cfg.Bulk, obs, log,
	)

	processor := dispatch.NewProcessor(socketSender, pushChannel, emailChannel, notificationStore, log)

	replayHandler := replay.NewHandler(
		notificationStore, tracker,
		time.Duration(cfg.Socket.ReconnectionWindowMinutes)*time.Minute,
		log,
	)

	// --- Queue Workers ---
	coordinationPool := queue.NewWorkerPool(
		queues.Coordination, processor.ProcessCoordination,
		cfg.Queues.Coordination.Concurrency,
		time.Duration(cfg.Queues.Coordination.PollIntervalMs)*time.Millisecond,
		nil, log,
	)
	pushPool := queue.NewWorkerPool(
		queues.Push, processor.ProcessPush,
		cfg.Queues.Push.Concurrency,
		time.Duration(cfg.Queues.Push.PollIntervalMs)*time.Millisecond,
		queues.PushLimiter, log,
	)
	emailPool := queue.NewWorkerPool(
		queues.Email, processor.ProcessEmail,
		cfg.Queues.Email.Concurrency,
		time.Duration(cfg.Queues.Email.PollIntervalMs)*time.Millisecond,
		queues.EmailLimiter, log,
	)

	coordinationPool.Start(ctx)
	pushPool.Start(ctx)
	emailPool.Start(ctx)
	zapLog.Info("All queue workers started")

	// --- Expiry Sweeper ---
	sweeper := cleanup.NewSweeper(notificationStore, rdb.Client, cfg.Cleanup, log)
	if err := sweeper.Start(); err != nil {
		zapLog.Fatal("cleanup scheduler failed", zap.Error(err))
	}

	// --- WebSocket Gateway ---
	wsHandler := gateway.NewHandler(tracker, replayHandler, service, nil, cfg.Socket, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ready"
		code := http.StatusOK
		if err := pg.Ping(r.Context()); err != nil {
			status = "not ready"
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}
	go func() {
		zapLog.Info("Gateway listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("gateway server failed", zap.Error(err))
		}
	}()

	// --- Metrics & pprof Server ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, nil); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down gateway server", zap.Error(err))
	}

	sweeper.Stop()
	coordinationPool.Stop()
	pushPool.Stop()
	emailPool.Stop()

	zapLog.Info("Notifier stopped gracefully")
}

// disabledPush stands in for the FCM sender when the channel is turned
// off. Jobs complete without delivery so they never pile up as retries.
type disabledPush struct {
	log logger.Logger
}

func (d *disabledPush) SendToToken(ctx context.Context, token, userID, title, body string, data map[string]string) error {
	d.log.Warn("push channel disabled, dropping message", map[string]interface{}{"userId": userID})
	return nil
}

type disabledEmail struct {
	log logger.Logger
}

func (d *disabledEmail) Send(ctx context.Context, to, subject, html string) error {
	d.log.Warn("email channel disabled, dropping message", map[string]interface{}{"subject": subject})
	return nil
}
