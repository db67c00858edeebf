package config

// Redis backs the rate limiter only.  No user or token state is ever kept
// in it, so an unreachable server degrades the limiter to a pass-through
// instead of stopping the service.

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions reads the connection settings:
//
//	REDIS_URL                 redis:// or rediss:// URL, wins over the rest
//	REDIS_ADDR                host:port (default localhost:6379)
//	REDIS_PASSWORD, REDIS_DB  optional
//	REDIS_TLS                 true/1 to dial with TLS
func RedisOptions() (*redis.Options, error) {
	if u := os.Getenv("REDIS_URL"); u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return opts, nil
	}
	opts := &redis.Options{
		Addr:     envStr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	if envBool("REDIS_TLS", false) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// NewRedisClient connects and pings within two seconds.  On error no client
// is returned.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	opts, err := RedisOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return client, nil
}
