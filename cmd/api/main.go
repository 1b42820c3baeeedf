package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/config"
	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/handler"
	"github.com/zhouzirui/tutibot/backend/internal/logging"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	"github.com/zhouzirui/tutibot/backend/internal/middleware"
	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
	"github.com/zhouzirui/tutibot/backend/internal/service/chat"
	"github.com/zhouzirui/tutibot/backend/internal/service/input"
	"github.com/zhouzirui/tutibot/backend/internal/service/responder"
	"github.com/zhouzirui/tutibot/backend/internal/service/speech"
	"github.com/zhouzirui/tutibot/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.ResolvedPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()
	logger.Info("storage opened", zap.String("driver", cfg.Storage.Driver), zap.String("path", cfg.Storage.ResolvedPath()))

	hub := events.NewHub(64)
	m := metrics.New()
	themes := theme.NewMemoryStore(theme.Seed())

	chatSvc := chat.NewService(store, themes,
		chat.WithKey(cfg.Storage.Key),
		chat.WithPublisher(hub),
		chat.WithMetrics(m),
		chat.WithLogger(logger.Named("chat")),
	)
	chatSvc.Load(ctx)

	replies := responder.New(responder.Config{
		TextDelay:  cfg.Responder.TextDelay,
		ImageDelay: cfg.Responder.ImageDelay,
	}, chatSvc, hub, m, logger.Named("responder"))
	defer replies.Close()
	chatSvc.OnReset(replies.CancelChat)

	composer := input.NewComposer(chatSvc, replies, hub, logger.Named("input"))

	relay := speech.NewRelay(cfg.Speech.Enabled, logger.Named("relay"))
	voice := speech.NewVoice(relay.Capability, relay, composer, cfg.Speech.Language, hub, m, logger.Named("voice"))
	defer voice.Close()
	if !cfg.Speech.Enabled {
		logger.Info("voice input disabled by configuration")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	router := handler.NewRouter(handler.Deps{
		Themes:      themes,
		Chats:       chatSvc,
		Responder:   replies,
		Composer:    composer,
		Voice:       voice,
		Relay:       relay,
		Hub:         hub,
		Metrics:     m,
		Logger:      logger,
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		UploadLimit: cfg.Server.UploadMaxBytes,
	})

	return startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	addr, err := serverCfg.Addr()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("TuTiBot backend listening", zap.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
