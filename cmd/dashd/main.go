package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamdash/internal/collector"
	"streamdash/internal/config"
	"streamdash/internal/recorder"
	"streamdash/internal/refresher"
	"streamdash/internal/scheduler"
	"streamdash/internal/server"
	"streamdash/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] streamdash starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init fetcher
	var fetcher collector.Fetcher
	switch {
	case cfg.DataSource.Mock:
		fetcher = collector.NewMockFetcher()
	case cfg.DataSource.BaseURL != "":
		fetcher = collector.NewProviderFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s, tracking %v", fetcher.Name(), cfg.Watch.Symbols)

	// Init store
	st := store.NewStore(cfg.Watch.BufferSize)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init coordinator and websocket hub
	coord := refresher.NewCoordinator(st, fetcher, rec, cfg)
	hub := server.NewHub()
	coord.OnCycle = hub.BroadcastCycle

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, coord, rec, cfg.Database.RetentionDays)
	if err := sched.RegisterAll(cfg.Schedule.PollCron, cfg.Schedule.PruneCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start HTTP server
	srv := server.NewServer(coord, st, hub)
	srv.Start(cfg.Server.Addr)

	log.Println("[INFO] streamdash is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] http shutdown: %v", err)
	}
	log.Println("[INFO] streamdash stopped")
}
