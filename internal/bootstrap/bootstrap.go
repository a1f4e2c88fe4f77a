// Package bootstrap builds the collaborators shared by the server and
// worker binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.temporal.io/sdk/log"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/config"
	"github.com/fossabot/gfw-data-api/internal/database"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/staging"
	"github.com/fossabot/gfw-data-api/internal/status"
)

// Store is the persistence used by both binaries.
type Store interface {
	assets.Repository
	status.Store
}

var (
	_ Store = (*database.Client)(nil)
	_ Store = (*status.MemoryStore)(nil)
)

// Logger returns the structured logger handed to non-workflow components.
func Logger() log.Logger {
	return log.NewStructuredLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// OpenStore connects to Postgres and migrates it, or returns an in-memory
// store when configured. The returned func releases the store.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	if cfg.InMemoryStore {
		return status.NewMemoryStore(), func() error { return nil }, nil
	}
	db, err := database.NewClient(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, db.Close, nil
}

// Runner returns the batch runner. Every submitted job carries the writer
// database credentials.
func Runner(ctx context.Context, cfg *config.Config, logger log.Logger) (batch.Runner, error) {
	var runner batch.Runner
	if cfg.FakeBatch {
		fake := batch.NewFakeRunner()
		fake.CompleteAfter = 1
		runner = fake
	} else {
		aws, err := batch.NewAWSRunner(ctx, batch.AWSConfig{
			Region:      cfg.AWSRegion,
			Endpoint:    cfg.BatchEndpoint,
			RateLimit:   cfg.BatchRateLimit,
			RateBurst:   cfg.BatchRateBurst,
			MaxAttempts: cfg.BatchMaxAttempts,
		}, logger)
		if err != nil {
			return nil, err
		}
		runner = aws
	}
	return batch.WithEnvironment(runner, assets.SecretEnv(cfg.Writer)), nil
}

// Planner returns the planner with the configured job profiles and staging.
func Planner(ctx context.Context, cfg *config.Config) (*assets.Planner, error) {
	profiles, err := jobs.LoadProfiles(cfg.JobProfilesFile)
	if err != nil {
		return nil, err
	}
	stager, err := Stager(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return assets.NewPlanner(jobs.NewBuilder(profiles, cfg.ChunkSize), stager, cfg.StatusURL), nil
}

// Stager uploads local sources to MinIO/S3 when an endpoint is configured
// and to a local directory otherwise.
func Stager(ctx context.Context, cfg *config.Config) (*staging.Stager, error) {
	var store staging.ObjectStore
	if cfg.MinioEndpoint != "" {
		s3, err := staging.NewS3Client(staging.S3Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		})
		if err != nil {
			return nil, err
		}
		store = s3
	} else {
		store = staging.NewLocalStore(cfg.StagingRoot)
	}
	if err := store.EnsureBucket(ctx, cfg.StagingBucket); err != nil {
		return nil, fmt.Errorf("staging bucket %s: %w", cfg.StagingBucket, err)
	}
	stager, err := staging.NewStager(store, cfg.StagingBucket, "uploads")
	if err != nil {
		return nil, err
	}
	stager.UploadRoot = cfg.UploadRoot
	return stager, nil
}
