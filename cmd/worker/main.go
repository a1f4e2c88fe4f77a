// Package main is the entry point for the Temporal worker that runs asset
// pipelines.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fossabot/gfw-data-api/internal/bootstrap"
	"github.com/fossabot/gfw-data-api/internal/config"
	"github.com/fossabot/gfw-data-api/internal/status"
	temporal_internal "github.com/fossabot/gfw-data-api/internal/temporal"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.InMemoryStore {
		log.Fatalf("the worker needs a shared database; unset ASSETS_IN_MEMORY_STORE")
	}
	logger := bootstrap.Logger()

	// Initialize store
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeStore()

	runner, err := bootstrap.Runner(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to create batch runner: %v", err)
	}
	planner, err := bootstrap.Planner(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create planner: %v", err)
	}

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Create worker and register the asset pipeline
	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	acts := temporal_internal.NewActivities(planner, runner, status.NewAggregator(store, logger))
	temporal_internal.Register(w, acts)

	// Health endpoint for orchestrators
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("health server error: %v", err)
		}
	}()
	defer grpcServer.GracefulStop()

	// Start worker
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(worker.InterruptCh())
	}()

	log.Printf("Temporal worker started on task queue: %s", cfg.TemporalTaskQueue)
	log.Printf("gRPC health listening on %s", cfg.GRPCAddr)

	// Handle shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down...", sig)
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Printf("worker error: %v", err)
		}
	}
}
