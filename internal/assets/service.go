package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"

	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/staging"
	"github.com/fossabot/gfw-data-api/internal/status"
)

// DefaultAssetType is the type of every asset built from a table or vector source.
const DefaultAssetType = "Database table"

const msgLaunchFailed = "Failed to start asset pipeline"

var ErrInvalidRequest = errors.New("invalid asset request")

// Repository is the persistence the service needs. Both database.Client
// and status.MemoryStore implement it.
type Repository interface {
	CreateDataset(ctx context.Context, dataset string) error
	CreateVersion(ctx context.Context, v *status.Version) error
	GetVersion(ctx context.Context, dataset, version string) (*status.Version, error)
	CreateAsset(ctx context.Context, a *status.Asset) error
	GetAsset(ctx context.Context, assetID string) (*status.Asset, error)
	GetTask(ctx context.Context, taskID string) (*status.Task, error)
	ListTasks(ctx context.Context, assetID string) ([]*status.Task, error)
}

// Launcher starts the pipeline of a created asset without waiting for it.
type Launcher interface {
	Launch(ctx context.Context, req Request) error
}

// CreateInput is the body of an asset creation request.
type CreateInput struct {
	Dataset         string          `json:"-"`
	Version         string          `json:"-"`
	SourceType      string          `json:"source_type"`
	SourceURIs      []string        `json:"source_uri"`
	CreationOptions json.RawMessage `json:"creation_options,omitempty"`
	IsDefault       bool            `json:"is_default"`
}

// Service creates assets and launches their pipelines.
type Service struct {
	repo     Repository
	agg      *status.Aggregator
	launcher Launcher
	logger   log.Logger

	// UploadRoot is the directory local source paths must resolve into.
	// When empty, only remote sources are accepted.
	UploadRoot string
}

// NewService creates a Service.
func NewService(repo Repository, agg *status.Aggregator, launcher Launcher, logger log.Logger) *Service {
	return &Service{repo: repo, agg: agg, launcher: launcher, logger: logger}
}

// CreateAsset registers the dataset and version when needed, stores a
// pending asset and launches its pipeline. A launch failure marks the
// asset failed and is returned together with the stored asset.
func (s *Service) CreateAsset(ctx context.Context, in CreateInput) (*status.Asset, error) {
	if in.Dataset == "" || in.Version == "" {
		return nil, fmt.Errorf("%w: dataset and version are required", ErrInvalidRequest)
	}
	req := Request{
		Dataset:         in.Dataset,
		Version:         in.Version,
		SourceType:      in.SourceType,
		SourceURIs:      in.SourceURIs,
		CreationOptions: in.CreationOptions,
	}
	if _, err := req.Source(); err != nil {
		return nil, err
	}
	for _, uri := range req.SourceURIs {
		if err := staging.CheckSource(uri, s.UploadRoot); err != nil {
			return nil, fmt.Errorf("%w: %v", jobs.ErrInvalidSource, err)
		}
	}

	if err := s.repo.CreateDataset(ctx, in.Dataset); err != nil {
		return nil, fmt.Errorf("create dataset %s: %w", in.Dataset, err)
	}
	if err := s.ensureVersion(ctx, in); err != nil {
		return nil, err
	}

	asset := &status.Asset{
		AssetID:         uuid.NewString(),
		Dataset:         in.Dataset,
		Version:         in.Version,
		AssetType:       DefaultAssetType,
		AssetURI:        fmt.Sprintf("/%s/%s/features", in.Dataset, in.Version),
		IsDefault:       in.IsDefault,
		IsManaged:       true,
		Status:          status.Pending,
		CreationOptions: in.CreationOptions,
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset for %s/%s: %w", in.Dataset, in.Version, err)
	}

	req.AssetID = asset.AssetID
	if err := s.launcher.Launch(ctx, req); err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to launch asset pipeline", "assetId", asset.AssetID, "error", err)
		}
		if s.agg != nil {
			if _, aggErr := s.agg.OnEvent(ctx, asset.AssetID, pipeline.Event{
				Status:  pipeline.StatusFailed,
				Message: msgLaunchFailed,
				Detail:  err.Error(),
			}); aggErr != nil && s.logger != nil {
				s.logger.Error("Failed to record launch failure", "assetId", asset.AssetID, "error", aggErr)
			}
		}
		return asset, fmt.Errorf("launch pipeline for asset %s: %w", asset.AssetID, err)
	}
	return asset, nil
}

func (s *Service) ensureVersion(ctx context.Context, in CreateInput) error {
	_, err := s.repo.GetVersion(ctx, in.Dataset, in.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, status.ErrNotFound) {
		return fmt.Errorf("get version %s/%s: %w", in.Dataset, in.Version, err)
	}
	err = s.repo.CreateVersion(ctx, &status.Version{
		Dataset:    in.Dataset,
		Version:    in.Version,
		SourceType: in.SourceType,
		SourceURI:  in.SourceURIs,
		Status:     status.Pending,
	})
	if err != nil && !errors.Is(err, status.ErrAlreadyExists) {
		return fmt.Errorf("create version %s/%s: %w", in.Dataset, in.Version, err)
	}
	return nil
}

// GetAsset returns the asset.
func (s *Service) GetAsset(ctx context.Context, assetID string) (*status.Asset, error) {
	return s.repo.GetAsset(ctx, assetID)
}

// ListTasks returns the tasks of an asset.
func (s *Service) ListTasks(ctx context.Context, assetID string) ([]*status.Task, error) {
	if _, err := s.repo.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, assetID)
}

// GetTask returns the task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*status.Task, error) {
	return s.repo.GetTask(ctx, taskID)
}

// GetVersion returns the version.
func (s *Service) GetVersion(ctx context.Context, dataset, version string) (*status.Version, error) {
	return s.repo.GetVersion(ctx, dataset, version)
}
