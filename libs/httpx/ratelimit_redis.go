package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests per client IP in fixed windows shared by every replica.
// Each window gets its own key, so counters expire on their own.
type RedisRateLimiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(rdb redis.Cmdable, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Middleware answers 429 over the limit. On a Redis error the request passes when failOpen
// is set and gets 503 otherwise. The client address is taken from RemoteAddr; put
// middleware.RealIP in front when running behind a proxy.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, resetIn, err := rl.hit(r.Context(), clientIP(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter unavailable", "err", err, "fail_open", failOpen)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}

			remaining := rl.limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if count > int64(rl.limit) {
				h.Set("Retry-After", strconv.Itoa(int(resetIn.Round(time.Second).Seconds())))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) hit(ctx context.Context, client string) (int64, time.Duration, error) {
	now := rl.now()
	bucket := now.UnixMilli() / rl.window.Milliseconds()
	resetIn := time.UnixMilli((bucket + 1) * rl.window.Milliseconds()).Sub(now)
	key := rl.prefix + client + ":" + strconv.FormatInt(bucket, 10)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), resetIn, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
