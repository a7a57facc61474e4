package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chattour/internal/api"
	"chattour/internal/chat"
	"chattour/internal/config"
	"chattour/internal/db"
	"chattour/internal/user"
)

func main() {
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		userStore user.Store
		chatStore chat.Store
	)
	switch cfg.Store {
	case "memory":
		userStore = user.NewMemoryRepository()
		chatStore = chat.NewMemoryStore()
		logger.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		database, err := db.NewDatabase(cfg.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer database.Close()
		logger.Info().Msg("connected to postgres")

		if err := database.Migrate(); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		userStore = user.NewRepository(database.Conn)
		chatStore = chat.NewRepository(database.Conn)
	}

	var notifier chat.Notifier
	if cfg.RedisAddr == "" || cfg.RedisAddr == "none" {
		notifier = chat.NewMemoryNotifier()
		logger.Warn().Msg("redis disabled, invalidations stay in this process")
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		notifier = chat.NewRedisNotifier(redisClient)
	}

	users := user.NewService(userStore, cfg.JWTSecret)
	functions := chat.NewFunctions(chatStore, notifier, cfg.HistoryLimit)
	hub := chat.NewHub(functions, notifier, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.NewRouter(logger, users, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return hub.SubscribeToNotifier(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", *addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
