package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/session-auth/internal/config"
	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/token"
)

// bucketScript takes one token from the bucket at KEYS[1], refilling it
// first for the intervals elapsed since the last refill.
//
//	ARGV: now_ms, burst, refill, every_ms, ttl_ms
//	returns {allowed, remaining, wait_ms}
var bucketScript = redis.NewScript(`
local key      = KEYS[1]
local now      = tonumber(ARGV[1])
local burst    = tonumber(ARGV[2])
local refill   = tonumber(ARGV[3])
local every_ms = tonumber(ARGV[4])
local ttl_ms   = tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local ts     = tonumber(redis.call('HGET', key, 'ts'))
if not tokens or not ts then
	tokens = burst
	ts = now
end

local steps = math.floor(math.max(0, now - ts) / every_ms)
if steps > 0 then
	tokens = math.min(burst, tokens + steps * refill)
	ts = ts + steps * every_ms
end

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait_ms = math.max(0, every_ms - (now - ts))
end

redis.call('HSET', key, 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', key, ttl_ms)
return { allowed, tokens, wait_ms }
`)

// maxPeek bounds how much of a request body is read to find the account.
const maxPeek = 64 << 10

// NewTokenBucket limits the credential endpoints with a token bucket kept in
// redis.  The default "account" strategy buckets by the email named in the
// body, so guessing one account's password from many addresses shares one
// budget; requests without an email fall back to the client IP.
//
// It fails open: with no client, or when redis errors, requests pass.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := bucketKey(cfg, c)
			res, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				cfg.TTL.Milliseconds(),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				log.WithError(err).WithField("key", key).Warn("ratelimit: redis unavailable, passing request")
				return next(c)
			}
			allowed, remaining, waitMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if allowed {
				return next(c)
			}

			secs := int(math.Ceil(float64(waitMs) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			log.WithFields(logrus.Fields{"key": key, "path": c.Path(), "retry_after": secs}).Info("ratelimit: blocked")
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"code":        "TOO_MANY_REQUESTS",
				"retry_after": secs,
			})
		}
	}
}

func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	default: // account
		if acct := accountOf(c); acct != "" {
			parts = append(parts, "acct", acct, "route", route)
		} else {
			parts = append(parts, "ip", ip, "route", route)
		}
	}
	return strings.Join(parts, ":")
}

// accountOf returns a digest of the normalized email in a JSON body, or ""
// when there is none.  The body is restored for the handler.
func accountOf(c echo.Context) string {
	req := c.Request()
	if req.Body == nil || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(req.Body, maxPeek))
	req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), req.Body))
	if err != nil {
		return ""
	}
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(buf, &body) != nil {
		return ""
	}
	email := model.NormalizeEmail(body.Email)
	if email == "" {
		return ""
	}
	return token.Hash(email)[:16]
}
