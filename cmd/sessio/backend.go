package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver for the sql backend
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sessio-dev/sessio/pkg/session"
)

// backendFlags selects and configures the session backend shared by the
// serve and sweep commands.
type backendFlags struct {
	backend     string
	redisAddr   string
	redisPrefix string
	postgresDSN string
	ttl         time.Duration
}

func (f *backendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "backend", "memory", "session backend: memory, redis, or postgres")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "localhost:6379", "redis address for --backend=redis")
	cmd.Flags().StringVar(&f.redisPrefix, "redis-prefix", "", "redis key prefix override")
	cmd.Flags().StringVar(&f.postgresDSN, "postgres-dsn", "", "postgres DSN for --backend=postgres")
	cmd.Flags().DurationVar(&f.ttl, "ttl", time.Hour, "session expiration window (0 = never expire)")
}

// open builds the configured backend and returns it with a cleanup
// function for the underlying connection.
func (f *backendFlags) open(ctx context.Context) (session.Map, func(), error) {
	cfg := session.StaticConfig{Expiration: f.ttl}

	switch f.backend {
	case "memory":
		return session.NewLocalMap(), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: f.redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}

		var opts []session.RedisMapOption
		if f.redisPrefix != "" {
			opts = append(opts, session.WithRedisPrefix(f.redisPrefix))
		}
		return session.NewRedisMap(client, cfg, opts...), func() { _ = client.Close() }, nil

	case "postgres":
		if f.postgresDSN == "" {
			return nil, nil, fmt.Errorf("--postgres-dsn is required for --backend=postgres")
		}
		db, err := sql.Open("postgres", f.postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres open failed: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("postgres connection failed: %w", err)
		}

		m := session.NewSQLMap(db, cfg)
		if err := m.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return m, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", f.backend)
	}
}
