package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server shared by the credential rate
// limiter and cache invalidation.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

func loadRedis(l *loader) RedisConfig {
	r := RedisConfig{
		Addr:     envStr("REDIS_ADDR", "localhost:6379"),
		Password: envStr("REDIS_PASSWORD", ""),
		DB:       l.intOr("REDIS_DB", 0),
		TLS:      envBool("REDIS_TLS", false),
	}
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		r.Addr = host + ":" + port
	}
	if r.DB < 0 {
		l.errs = append(l.errs, fmt.Errorf("invalid REDIS_DB: %d", r.DB))
	}
	return r
}

// Open connects and pings.  Callers treat an error as "run without Redis".
func (r RedisConfig) Open(ctx context.Context) (*redis.Client, error) {
	opts := &redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB}
	if r.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", r.Addr, err)
	}
	return client, nil
}
