package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-broadcast/config"
	"github.com/mossy-p/webrtc-broadcast/internal/handlers"
	"github.com/mossy-p/webrtc-broadcast/internal/redis"
	"github.com/mossy-p/webrtc-broadcast/internal/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Room directory: Redis when configured, memory otherwise
	var dir relay.Directory = relay.NewMemoryDirectory()
	if cfg.Redis.Enabled() {
		rdir, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdir.Close()
		dir = rdir
		log.Info().Str("host", cfg.Redis.Host).Msg("Redis connection established")
	}

	hub := relay.NewHub(dir)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(cfg, hub),
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", cfg.Port).Msg("Starting broadcast signaling relay")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
