package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"puntoventa/terminal/internal/backend"
	"puntoventa/terminal/internal/config"
	"puntoventa/terminal/internal/drafts"
	"puntoventa/terminal/internal/localstore"
	"puntoventa/terminal/internal/logging"
	"puntoventa/terminal/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(logging.Options{ServiceName: "pos-terminal"})
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(logging.Options{
		ServiceName: "pos-terminal",
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	store, err := localstore.Open(cfg.StatePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StatePath).Msg("cannot open terminal state")
	}
	closers = append(closers, store.Close)

	sessions := session.NewManager(store, logger)

	client := backend.NewClient(backend.Options{
		BaseURL:          cfg.BackendURL,
		Timeout:          cfg.RequestTimeout,
		Tokens:           sessions,
		OnSessionExpired: sessions.Expire,
		Logger:           logger,
	})

	var draftCache drafts.Cache = drafts.NewMemoryCache(cfg.DraftTTL())
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, drafts stay in memory")
		} else {
			redisCache := drafts.NewRedisCache(rdb, cfg.DraftTTL())
			draftCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("drafts: redis")
		}
	}

	app := newApp(cfg, logger, client, sessions, draftCache)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if err := app.run(runCtx, os.Stdin, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("terminal stopped with error")
		exitCode = 1
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("terminal stopped")
	os.Exit(exitCode)
}
