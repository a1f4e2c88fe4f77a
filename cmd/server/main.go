// Package main is the entry point for the asset API server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fossabot/gfw-data-api/internal/api"
	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/bootstrap"
	"github.com/fossabot/gfw-data-api/internal/config"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
	"github.com/fossabot/gfw-data-api/internal/temporal"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := bootstrap.Logger()

	// Initialize store and run migrations
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeStore()

	agg := status.NewAggregator(store, logger)

	// Pipelines run in-process with the in-memory store, on Temporal otherwise
	var launcher assets.Launcher
	var local *assets.LocalLauncher
	if cfg.InMemoryStore {
		runner, err := bootstrap.Runner(ctx, cfg, logger)
		if err != nil {
			log.Fatalf("failed to create batch runner: %v", err)
		}
		planner, err := bootstrap.Planner(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to create planner: %v", err)
		}
		local = assets.NewLocalLauncher(ctx, planner, runner, agg, pipeline.Options{
			MaxRounds:    pipeline.RoundCap(cfg.SchedulerMaxRound, cfg.ChunkSize),
			PollInterval: cfg.PollInterval,
		}, logger)
		launcher = local
		log.Printf("running asset pipelines in-process")
	} else {
		tc, err := temporal.NewClient(cfg)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer tc.Close()
		launcher = tc
	}

	svc := assets.NewService(store, agg, launcher, logger)
	svc.UploadRoot = cfg.UploadRoot
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(svc, agg, logger).Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down server: %v", err)
		}
		cancel()
	}()

	log.Printf("Asset API listening on :%s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	if local != nil {
		local.Wait()
	}
}
