package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/bus"
	"chatrelay/internal/history"
	"chatrelay/internal/server"
	"chatrelay/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		log.Logger = log.Logger.Level(level)
	}

	cfg := server.NewConfigFromEnv()

	var seed []*history.Room
	if cfg.SeedDemoRooms {
		seed = history.DemoRooms()
	}
	store := history.NewMemStore(seed...)

	var kv history.KV
	var connect func(bus.Handler) (bus.Bus, error)

	if cfg.Redis.Host != "" {
		// The cache client doubles as the bus publisher; the subscriber
		// gets its own connection for the blocking receive loop.
		cacheClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		subClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		kv = history.NewRedisKV(cacheClient)
		connect = func(h bus.Handler) (bus.Bus, error) {
			return bus.NewRedis(context.Background(), cacheClient, subClient, h, log.Logger)
		}
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("using redis cache and bus")
	} else {
		broker := bus.NewBroker()
		kv = history.NewMemoryKV()
		connect = func(h bus.Handler) (bus.Bus, error) {
			return broker.Connect(h), nil
		}
		log.Warn().Msg("REDISHOST not set, running single-instance with in-process cache and bus")
	}

	sessions := session.NewRegistry()
	hist := history.NewService(kv, store, log.Logger)

	hub, err := server.NewHub(sessions, hist, connect, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start hub")
	}

	mux := server.SetupRoutes(hub, cfg, log.Logger)
	httpServer := server.CreateServer(cfg.Port, mux)

	go func() {
		if err := server.StartServer(httpServer, log.Logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if err := server.ShutdownServer(httpServer, shutdownTimeout, log.Logger); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("hub shutdown incomplete")
	}
	hist.Close()
}
