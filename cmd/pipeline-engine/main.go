package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farandaway89/scada-ai-system/internal/alerting"
	"github.com/farandaway89/scada-ai-system/internal/api"
	"github.com/farandaway89/scada-ai-system/internal/cache"
	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/engine"
	"github.com/farandaway89/scada-ai-system/internal/ingest"
	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/repo"
	"github.com/farandaway89/scada-ai-system/internal/services"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pipeline engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cfgStore, err := config.NewStore(cfg)
	if err != nil {
		logger.Error("failed to seed config store", slog.Any("error", err))
		os.Exit(1)
	}

	var store repo.Store
	switch cfg.Store.Backend {
	case "redis":
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisStore, err := repo.NewRedisStore(connectCtx, repo.RedisConfig{
			Addr:         cfg.Store.Addr,
			Password:     cfg.Store.Password,
			DB:           cfg.Store.DB,
			ReadingTTL:   cfg.Store.ReadingTTL,
			MaxRetries:   cfg.Store.MaxRetries,
			RetryBackoff: cfg.Store.RetryBackoff,
		})
		cancel()
		if err != nil {
			logger.Error("redis store unavailable", slog.String("addr", cfg.Store.Addr), slog.Any("error", err))
			os.Exit(1)
		}
		store = redisStore
	default:
		store = repo.NewMemoryStore()
		logger.Info("using in-memory store; readings are not durable")
	}
	defer store.Close()

	feed := services.NewFeed()
	defer feed.Close()

	var channels []alerting.Channel
	channels = append(channels, alerting.NewLogChannel(logger))
	for _, url := range cfg.Alerting.WebhookURLs {
		channels = append(channels, alerting.NewWebhookChannel(url, nil))
	}
	alertLogger := utils.ComponentLogger(logger, "alerting")
	dispatcher := alerting.NewDispatcher(alertLogger, channels,
		cfg.Alerting.DispatchRetries, cfg.Alerting.DispatchBackoff, cfg.Alerting.DispatchTimeout)
	manager := alerting.NewManager(alertLogger, cfgStore, store, dispatcher, feed)

	readingCache := cache.New(cfg.Queue.WindowSize)
	pipeline := engine.NewPipeline(utils.ComponentLogger(logger, "engine"), cfgStore, readingCache, store, manager, feed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline.Start(ctx)
	defer pipeline.Stop()

	ingestLogger := utils.ComponentLogger(logger, "ingest")
	validator := ingest.NewValidator(ingestLogger, cfgStore, pipeline)

	if cfg.Ingest.Simulator.Enabled {
		simulator := ingest.NewSimulator(ingestLogger, cfgStore, validator)
		go simulator.Run(ctx)
	}

	var natsSource *ingest.NATSSource
	if cfg.Ingest.NATS.Enabled {
		natsSource, err = ingest.NewNATSSource(ingestLogger, cfg.Ingest.NATS.URL, cfg.Ingest.NATS.SubjectPrefix, validator)
		if err != nil {
			logger.Error("nats source unavailable", slog.String("url", cfg.Ingest.NATS.URL), slog.Any("error", err))
			os.Exit(1)
		}
		if err := natsSource.Start(); err != nil {
			logger.Error("nats subscribe failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer natsSource.Close()
	}

	facade := services.NewFacade(logger, cfgStore, readingCache, store, manager, pipeline, validator, feed)
	server := api.NewServer(utils.ComponentLogger(logger, "api"), cfg.Server.Address, facade)

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	// SIGHUP re-reads the config file and swaps the snapshot; an invalid
	// file leaves the running configuration untouched.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			next, err := config.Load(configPath)
			if err != nil {
				logger.Error("config reload failed, keeping previous", slog.Any("error", err))
				continue
			}
			if err := cfgStore.Reload(next); err != nil {
				logger.Error("config reload rejected, keeping previous", slog.Any("error", err))
				continue
			}
			logger.Info("configuration reloaded", slog.Uint64("version", cfgStore.Current().Version))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	manager.Wait()

	// Give remaining goroutines time to finish logging.
	time.Sleep(100 * time.Millisecond)
	logger.Info("pipeline engine stopped")
}
