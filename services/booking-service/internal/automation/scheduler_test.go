package automation

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/md-rashed-zaman/apptdesk/libs/lock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type countingTicker struct {
	ticks atomic.Int32
}

func (c *countingTicker) Tick(context.Context) error {
	c.ticks.Add(1)
	return nil
}

func TestSchedulerRunTicksUntilCancelled(t *testing.T) {
	ticker := &countingTicker{}
	s := NewScheduler(ticker, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), SchedulerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ticker.ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerSkipsTickHeldByAnotherInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := lock.NewRedisLock(client)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, ok, err := locker.Lock(context.Background(), "automation:tick", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	ticker := &countingTicker{}
	s := NewScheduler(ticker, locker, logger, SchedulerConfig{})
	s.RunOnce(context.Background())
	assert.Equal(t, int32(0), ticker.ticks.Load())

	mr.FastForward(2 * time.Minute)
	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), ticker.ticks.Load())
	assert.False(t, mr.Exists("lock:automation:tick"), "tick lock should be released")
}

func TestSchedulerRunsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	ticker := &countingTicker{}
	s := NewScheduler(ticker, lock.NewRedisLock(client), slog.New(slog.NewTextHandler(io.Discard, nil)), SchedulerConfig{})
	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), ticker.ticks.Load())
}
