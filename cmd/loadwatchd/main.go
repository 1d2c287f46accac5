package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadwatch/internal/alerts"
	"loadwatch/internal/anomaly"
	"loadwatch/internal/api"
	"loadwatch/internal/bus"
	"loadwatch/internal/cache"
	"loadwatch/internal/config"
	"loadwatch/internal/engine"
	"loadwatch/internal/ingest"
	"loadwatch/internal/logging"
	"loadwatch/internal/model"
	"loadwatch/internal/status"
	"loadwatch/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "loadwatch.yaml", "path to the config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("loadwatchd", version)
		return
	}

	path := config.ResolvePath(*configPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			fmt.Fprintln(os.Stderr, "write default config:", err)
			os.Exit(1)
		}
	}
	manager, err := config.NewManager(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("loadwatchd starting", "version", version, "config", path)

	statusStore := status.NewStore(cfg.Status.StoreLimit)
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	anomalyStore := anomaly.NewStore(cfg.Anomalies.StoreLimit)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := store.Init(initCtx)
		cancel()
		if err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	cacheClient, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Error("cache init failed", "err", err)
		os.Exit(1)
	}
	if cacheClient != nil {
		logger.Info("cache enabled", "addr", cfg.Cache.Addr)
	}

	publisher, err := bus.NewPublisher(cfg.Bus)
	if err != nil {
		logger.Error("bus init failed", "err", err)
		os.Exit(1)
	}
	if publisher != nil {
		logger.Info("bus enabled", "url", cfg.Bus.URL)
	}

	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), statusStore, alertsStore, anomalyStore, store, cacheClient, publisher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := make(chan model.Observation, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, in)

	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartREST(ctx, manager, in, ingestLogger)
	ingest.StartKafka(ctx, manager, in, ingestLogger)
	ingest.StartLineListener(ctx, manager, in, ingestLogger)

	api.Start(ctx, manager, statusStore, alertsStore, anomalyStore, eng, logging.Component(logger, "api"), version)

	go manager.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "path", path)
			eng.Reconfigure(next)
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		ctx.Done(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if store != nil {
		_ = store.Close()
	}
	_ = cacheClient.Close()
	publisher.Close()
	logger.Info("loadwatchd stopped")
}
