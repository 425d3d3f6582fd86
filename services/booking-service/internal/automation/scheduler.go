package automation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptdesk/libs/lock"
)

type Ticker interface {
	Tick(ctx context.Context) error
}

// Scheduler runs the engine on a fixed period. Ticks never overlap within a process; with a
// locker, at most one instance scans per period.
type Scheduler struct {
	engine   Ticker
	locker   lock.Locker
	logger   *slog.Logger
	interval time.Duration
	lockKey  string
	lockTTL  time.Duration
}

type SchedulerConfig struct {
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
}

// NewScheduler accepts a nil locker for single-instance deployments.
func NewScheduler(engine Ticker, locker lock.Locker, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "automation:tick"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	return &Scheduler{
		engine:   engine,
		locker:   locker,
		logger:   logger,
		interval: cfg.Interval,
		lockKey:  cfg.LockKey,
		lockTTL:  cfg.LockTTL,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("automation scheduler started", "interval", s.interval.String())
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("automation scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one tick, skipping it when another instance holds the tick lock.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.locker != nil {
		token, ok, err := s.locker.Lock(ctx, s.lockKey, s.lockTTL)
		switch {
		case err != nil:
			s.logger.Warn("automation tick lock unavailable; scanning without it", "err", err)
		case !ok:
			s.logger.Debug("automation tick held by another instance")
			return
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), s.lockKey, token); err != nil && !errors.Is(err, lock.ErrNotHeld) {
					s.logger.Warn("automation tick unlock failed", "err", err)
				}
			}()
		}
	}

	if err := s.engine.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("automation tick failed", "err", err)
	}
}
