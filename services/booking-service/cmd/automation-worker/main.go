package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/apptdesk/libs/config"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/libs/kafkax"
	"github.com/md-rashed-zaman/apptdesk/libs/lock"
	otelx "github.com/md-rashed-zaman/apptdesk/libs/otel"
	"github.com/md-rashed-zaman/apptdesk/libs/runtime"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/outbox"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// automation-worker runs the reminder/no-show scheduler and the outbox publisher without
// the HTTP API, for deployments that scale the two independently.
func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "automation-worker")
	port, err := config.Port("PORT", "8093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLoggerWithLevel(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb redis.UniversalClient
	var redisReady func(context.Context) error
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		client, err := lock.Dial(ctx, addr)
		if err != nil {
			logger.Warn("redis unavailable; ticks run without the cluster lock", "err", err)
		} else {
			defer client.Close()
			rdb = client
			redisReady = lock.ReadyCheck(client)
		}
	}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	automation, err := app.NewAutomation(pool, rdb, logger, metrics.New(nil), app.AutomationConfigFromEnv())
	if err != nil {
		logger.Error("automation setup failed", "err", err)
		panic(err)
	}
	go automation.Scheduler.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisReady},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ops server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "err", err)
	}
	logger.Info("automation worker stopped")
}
