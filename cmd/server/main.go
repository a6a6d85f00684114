package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	httpapi "github.com/session-hub/session-hub/internal/api/http"
	"github.com/session-hub/session-hub/internal/application/auth"
	"github.com/session-hub/session-hub/internal/application/session"
	"github.com/session-hub/session-hub/internal/config"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.SessionStore).Msg("store error")
	}
	defer stores.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// services
	sessionSvc := session.NewService(stores.sessions, session.Config{
		TTL:            cfg.SessionTTL,
		RollingRefresh: cfg.SessionRollingRefresh,
	}, logger, session.WithMetrics(session.NewMetrics(registry)))
	authSvc := auth.NewService(stores.users, sessionSvc, logger)

	// API server
	apiServer := httpapi.NewServer(authSvc, registry, cfg.SessionCookieName, cfg.SessionCookieSecure, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	if cfg.SessionSweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.SessionSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := sessionSvc.SweepExpired(ctx); err != nil {
						logger.Warn().Err(err).Msg("session sweep failed")
					}
				}
			}
		}()
	}

	// start server
	go func() {
		logger.Info().
			Str("addr", cfg.ServerAddr).
			Str("store", cfg.SessionStore).
			Dur("session_ttl", cfg.SessionTTL).
			Dur("rolling_refresh", cfg.SessionRollingRefresh).
			Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	logger.Info().Msg("http server stopped")
}
