package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/config"
)

// tokenBucket refills continuously at refill/interval tokens per ms and
// takes one token.  It returns {allowed, floor(remaining), retry_after_ms}.
var tokenBucket = redis.NewScript(`
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3]) / tonumber(ARGV[4])
local now = tonumber(ARGV[1])

local level, seen = unpack(redis.call('HMGET', KEYS[1], 'level', 'seen'))
level = tonumber(level) or capacity
seen = tonumber(seen) or now
level = math.min(capacity, level + math.max(0, now - seen) * rate)

local ok, wait = 0, 0
if level >= 1 then
    ok = 1
    level = level - 1
else
    wait = math.ceil((1 - level) / rate)
end

redis.call('HSET', KEYS[1], 'level', tostring(level), 'seen', now)
redis.call('EXPIRE', KEYS[1], ARGV[5])
return { ok, math.floor(level), wait }
`)

// NewTokenBucket limits requests per key with a Redis token bucket.  secret
// verifies bearer tokens for user keyed strategies.  Redis failures let
// the request through.  Without a client it is a no-op.
func NewTokenBucket(cfg config.RateLimitConfig, secret string, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, secret, c)
			args := []any{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}
			vals, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
			if err != nil || len(vals) != 3 {
				log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, ErrorBody{
					Error:   "TOO_MANY_REQUESTS",
					Message: "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}

func rateKey(cfg config.RateLimitConfig, secret string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		// anonymous callers fall back to their address
		if u := userKey(c, secret); u != "anon" {
			parts = append(parts, "user", u)
		} else {
			parts = append(parts, "ip", ip)
		}
	case "ip_user_route":
		parts = append(parts, "ip", ip, "user", userKey(c, secret), "route", c.Request().Method+" "+c.Path())
	default:
		parts = append(parts, "ip", ip, "user", userKey(c, secret))
	}
	return strings.Join(parts, ":")
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
