package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER", "auth")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_NAME", "authdb")
	t.Setenv("JWT_SECRET", "current-secret")
}

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequiredEnvVars(t)

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "k1", cfg.SigningKey.ID)
		assert.Equal(t, "current-secret", cfg.SigningKey.Secret)
		assert.Equal(t, 15*time.Minute, cfg.AccessTTL())
		assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
		assert.Equal(t, 15*time.Minute, cfg.ResetTTL())
		assert.Equal(t, 12, cfg.BcryptCost)
		assert.False(t, cfg.ResetTokenInResponse)
		assert.Empty(t, cfg.PreviousKeys)
		assert.Equal(t, time.Hour, cfg.SweepInterval)
	})

	t.Run("missing required variables are all reported", func(t *testing.T) {
		t.Setenv("DB_USER", "")
		t.Setenv("DB_HOST", "")
		t.Setenv("DB_NAME", "authdb")
		t.Setenv("JWT_SECRET", "")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_USER")
		assert.Contains(t, err.Error(), "DB_HOST")
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("previous keys", func(t *testing.T) {
		setRequiredEnvVars(t)
		t.Setenv("JWT_KEY_ID", "k2")
		t.Setenv("JWT_PREVIOUS_KEYS", "k1:old-secret, k0:older")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []SigningKey{{ID: "k1", Secret: "old-secret"}, {ID: "k0", Secret: "older"}}, cfg.PreviousKeys)
	})

	t.Run("previous key reusing current kid", func(t *testing.T) {
		setRequiredEnvVars(t)
		t.Setenv("JWT_PREVIOUS_KEYS", "k1:old-secret")

		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("malformed previous key", func(t *testing.T) {
		setRequiredEnvVars(t)
		t.Setenv("JWT_PREVIOUS_KEYS", "no-separator")

		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("bcrypt cost out of range", func(t *testing.T) {
		setRequiredEnvVars(t)
		t.Setenv("BCRYPT_COST", "2")

		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("sweep interval must be positive", func(t *testing.T) {
		for _, v := range []string{"0s", "-1m"} {
			setRequiredEnvVars(t)
			t.Setenv("SWEEP_INTERVAL", v)

			_, err := FromEnv()
			require.Error(t, err, v)
			assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
		}
	})

	t.Run("development reset flag", func(t *testing.T) {
		setRequiredEnvVars(t)
		t.Setenv("RESET_TOKEN_IN_RESPONSE", "yes")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.ResetTokenInResponse)
	})
}

func TestDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBHost: "db", DBPort: "3306", DBName: "auth"}
	assert.Equal(t, "u@tcp(db:3306)/auth?charset=utf8mb4&parseTime=true&loc=UTC", cfg.DSN())

	cfg.DBPass = "p"
	assert.Contains(t, cfg.DSN(), "u:p@tcp(db:3306)")
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "10s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.RefillInterval)
	assert.Equal(t, 50*time.Second, rl.TTL)
	assert.Equal(t, "rl:auth", rl.Prefix)
}

func TestNewRedisClient(t *testing.T) {
	t.Run("address", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("REDIS_ADDR", mr.Addr())

		rdb, err := NewRedisClient(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { _ = rdb.Close() })
		assert.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
		assert.True(t, mr.Exists("k"))
	})

	t.Run("url wins", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "127.0.0.1:1")
		t.Setenv("REDIS_URL", "redis://:pw@cache.internal:6380/2")

		opts, err := RedisOptions()
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, 2, opts.DB)
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		t.Setenv("REDIS_ADDR", addr)

		rdb, err := NewRedisClient(context.Background())
		assert.Error(t, err)
		assert.Nil(t, rdb)
	})

	t.Run("bad url", func(t *testing.T) {
		t.Setenv("REDIS_URL", "http://nope")
		_, err := RedisOptions()
		assert.Error(t, err)
	})
}
