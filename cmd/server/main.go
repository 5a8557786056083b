package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rmrecorder/recentmessages/internal/auth"
	"github.com/rmrecorder/recentmessages/internal/cache"
	"github.com/rmrecorder/recentmessages/internal/config"
	"github.com/rmrecorder/recentmessages/internal/events"
	"github.com/rmrecorder/recentmessages/internal/ingest"
	"github.com/rmrecorder/recentmessages/internal/ircclient"
	"github.com/rmrecorder/recentmessages/internal/joinpart"
	"github.com/rmrecorder/recentmessages/internal/storage"
	"github.com/rmrecorder/recentmessages/internal/web"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	store, err := storage.Open(&cfg.DB)
	if err != nil {
		logger.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	if err := storage.RunMigrations(&cfg.DB); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}

	if err := store.FetchInitialMetricsValues(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to seed startup metrics from existing row counts")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer redisClient.Close()
	}
	cacheManager := cache.New(redisClient, logger)

	var brokers []string
	if cfg.Kafka.Enabled {
		brokers = cfg.Kafka.Brokers
	}
	publisher := events.New(brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	twitchClient := auth.NewClient(cfg.Web.TwitchAPICredentials)
	sessions := auth.NewSessions(twitchClient, store, cfg.Web.SessionsExpireAfter, cfg.Web.RecheckTwitchAuthAfter)

	irc := ircclient.New(ircclient.Config{
		Nick:               cfg.IRC.Nick,
		Pass:               cfg.IRC.Pass,
		NewConnectionEvery: cfg.IRC.NewConnectionEvery,
		Logger:             logger,
	})

	pipeline := ingest.New(irc, store, cfg.IRC.ForwarderRunEvery, cfg.IRC.ForwarderMaxChunkSize, 10_000, logger)

	server := web.New(store, cacheManager, publisher, sessions, irc, logger, web.Config{
		MaxBufferSize:  cfg.App.MaxBufferSize,
		RequestTimeout: cfg.Web.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:         cfg.Web.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		if err := irc.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("irc client stopped unexpectedly")
		}
	}()
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		joinpart.Loop(ctx, irc, store, cfg.App.VacuumChannelsEvery, cfg.App.ChannelsExpireAfter, logger)
	}()
	go func() {
		defer wg.Done()
		store.RunVacuumLoop(ctx, cfg.App.VacuumMessagesEvery, cfg.App.ChannelsExpireAfter, cfg.App.MessagesExpireAfter, cfg.App.MaxBufferSize, logger)
	}()

	go func() {
		logger.WithField("addr", cfg.Web.ListenAddress).Info("starting recentmessages HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}

	// A second signal escalates to an ungraceful exit instead of waiting
	// on long-running tasks that may be stuck.
	forceQuit := make(chan os.Signal, 1)
	signal.Notify(forceQuit, syscall.SIGINT, syscall.SIGTERM)

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		logger.Info("all background tasks stopped cleanly")
	case <-forceQuit:
		logger.Warn("second interrupt received, forcing exit")
		os.Exit(1)
	}
}
