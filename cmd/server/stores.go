package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/config"
	domainSession "github.com/session-hub/session-hub/internal/domain/session"
	domainUser "github.com/session-hub/session-hub/internal/domain/user"
	"github.com/session-hub/session-hub/internal/infrastructure/memory"
	"github.com/session-hub/session-hub/internal/infrastructure/postgres"
	"github.com/session-hub/session-hub/internal/infrastructure/redis"
)

type stores struct {
	users    domainUser.Repository
	sessions domainSession.Repository
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores wires the repositories for cfg.SessionStore. Users live in
// Postgres for every backend except memory.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.SessionStore == config.StoreMemory {
		logger.Warn().Msg("using in-memory stores; data is lost on restart")
		users := memory.NewUserRepository()
		return &stores{users: users, sessions: memory.NewSessionRepository(users)}, nil
	}

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	s := &stores{
		users:   postgres.NewUserRepository(pool),
		closers: []func(){pool.Close},
	}

	switch cfg.SessionStore {
	case config.StoreRedis:
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis error: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.sessions = redis.NewSessionRepository(client, s.users)
	default:
		s.sessions = postgres.NewSessionRepository(pool)
	}
	return s, nil
}
