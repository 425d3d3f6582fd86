package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptdesk/libs/config"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/libs/lock"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/automation"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/dedup"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/messaging"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

type AutomationConfig struct {
	// DedupBackend is one of postgres, redis or memory.
	DedupBackend    string
	DedupTTL        time.Duration
	Interval        time.Duration
	NoShowLookback  time.Duration
	DispatchTimeout time.Duration
}

func AutomationConfigFromEnv() AutomationConfig {
	return AutomationConfig{
		DedupBackend:    strings.ToLower(config.String("AUTOMATION_DEDUP_BACKEND", "postgres")),
		DedupTTL:        config.Duration("AUTOMATION_DEDUP_TTL", 45*24*time.Hour),
		Interval:        config.Duration("AUTOMATION_INTERVAL", 60*time.Second),
		NoShowLookback:  config.Duration("AUTOMATION_NO_SHOW_LOOKBACK", 7*24*time.Hour),
		DispatchTimeout: config.Duration("AUTOMATION_DISPATCH_TIMEOUT", 10*time.Second),
	}
}

// Locker returns nil when Redis is not configured.
func Locker(rdb redis.UniversalClient) lock.Locker {
	if rdb == nil {
		return nil
	}
	return lock.NewRedisLock(rdb)
}

// DedupStore picks the sent-marker backend. The redis backend needs a client.
func DedupStore(backend string, pool db.DB, rdb redis.UniversalClient, ttl time.Duration) (dedup.Store, error) {
	switch backend {
	case "", "postgres":
		return dedup.NewPostgresStore(pool), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("dedup backend redis requires REDIS_ADDR")
		}
		return dedup.NewRedisStore(rdb, ttl), nil
	case "memory":
		return dedup.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", backend)
	}
}

// Automation holds the wired reminder and no-show pipeline.
type Automation struct {
	Engine    *automation.Engine
	Scheduler *automation.Scheduler
}

// NewAutomation wires the engine over the shared repositories. rdb may be nil.
func NewAutomation(pool db.DB, rdb redis.UniversalClient, logger *slog.Logger, m *metrics.Metrics, cfg AutomationConfig) (*Automation, error) {
	store, err := DedupStore(cfg.DedupBackend, pool, rdb, cfg.DedupTTL)
	if err != nil {
		return nil, err
	}

	appointments := storage.NewAppointmentRepository(pool)
	dispatcher := messaging.NewConversationDispatcher(
		pool,
		storage.NewConversationRepository(pool),
		appointments,
		outbox.NewRepository(),
		logger,
	)
	engine := automation.NewEngine(
		appointments,
		storage.NewSettingsRepository(pool),
		store,
		dispatcher,
		logger,
		m,
		automation.EngineConfig{
			NoShowLookback:  cfg.NoShowLookback,
			DispatchTimeout: cfg.DispatchTimeout,
		},
	)
	scheduler := automation.NewScheduler(engine, Locker(rdb), logger, automation.SchedulerConfig{
		Interval: cfg.Interval,
	})
	return &Automation{Engine: engine, Scheduler: scheduler}, nil
}
