package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/md-rashed-zaman/apptdesk/libs/config"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/libs/httpx"
	"github.com/md-rashed-zaman/apptdesk/libs/kafkax"
	"github.com/md-rashed-zaman/apptdesk/libs/lock"
	otelx "github.com/md-rashed-zaman/apptdesk/libs/otel"
	"github.com/md-rashed-zaman/apptdesk/libs/runtime"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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
			logger.Warn("redis unavailable; booking locks and rate limits disabled", "err", err)
		} else {
			defer client.Close()
			rdb = client
			redisReady = lock.ReadyCheck(client)
		}
	}

	m := metrics.New(nil)
	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	appointments := storage.NewAppointmentRepository(pool)
	types := storage.NewAppointmentTypeRepository(pool)
	settings := storage.NewSettingsRepository(pool)

	bookings := booking.NewService(
		pool,
		appointments,
		types,
		storage.NewDirectoryRepository(pool),
		settings,
		outboxRepo,
		app.Locker(rdb),
		logger,
		m,
		booking.Config{
			LockTTL:   config.Duration("BOOKING_LOCK_TTL", 10*time.Second),
			LockWait:  config.Duration("BOOKING_LOCK_WAIT", 2*time.Second),
			SlotGrace: config.Duration("BOOKING_SLOT_GRACE", 15*time.Minute),
		},
	)
	machine := lifecycle.NewMachine(pool, appointments, outboxRepo, logger)

	automation, err := app.NewAutomation(pool, rdb, logger, m, app.AutomationConfigFromEnv())
	if err != nil {
		logger.Error("automation setup failed", "err", err)
		panic(err)
	}
	machine.OnNoShow(automation.Engine.HandleNoShow)
	if config.Bool("AUTOMATION_ENABLED", true) {
		go automation.Scheduler.Run(ctx)
	}

	var public []func(http.Handler) http.Handler
	if rdb != nil {
		limit := config.Int("PUBLIC_RATE_LIMIT", 60)
		limiter := httpx.NewRedisRateLimiter(rdb, limit, config.Duration("PUBLIC_RATE_WINDOW", time.Minute), "rl:booking:")
		public = append(public, limiter.Middleware(logger, true))
	}
	api := handlers.NewHandler(bookings, machine, appointments, settings, types, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisReady},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", api.Routes(public...))

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
		httpx.WithRecover(logger),
		middleware.RealIP,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
