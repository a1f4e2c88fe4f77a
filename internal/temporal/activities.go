package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/staging"
	"github.com/fossabot/gfw-data-api/internal/status"
)

// Application error types raised by the activities. Errors of these types
// are not retried.
const (
	ErrTypeInvalidSource      = "InvalidSource"
	ErrTypeStagingFailed      = "StagingFailed"
	ErrTypeSubmissionRejected = "SubmissionRejected"
	ErrTypeInvalidEvent       = "InvalidEvent"
	ErrTypeScheduling         = "SchedulingError"
)

// Activities holds the collaborators of the asset pipeline activities.
type Activities struct {
	planner *assets.Planner
	runner  batch.Runner
	agg     *status.Aggregator
}

// NewActivities creates a new Activities instance.
func NewActivities(planner *assets.Planner, runner batch.Runner, agg *status.Aggregator) *Activities {
	return &Activities{planner: planner, runner: runner, agg: agg}
}

// =============================================================================
// PLANNING ACTIVITIES
// =============================================================================

// StageSources moves the request's source files to durable storage.
func (a *Activities) StageSources(ctx context.Context, req assets.Request) (*assets.Request, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Staging asset sources", "assetId", req.AssetID, "sources", len(req.SourceURIs))

	staged, err := a.planner.Stage(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrInvalidSource):
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidSource, err)
		case !staging.IsRetryable(err):
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeStagingFailed, err)
		}
		return nil, err
	}
	return &staged, nil
}

// PlanAssetJobs builds the job graph of a staged request.
func (a *Activities) PlanAssetJobs(ctx context.Context, req assets.Request) (*jobs.Graph, error) {
	g, err := a.planner.Plan(req)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidSource, err)
	}
	depth, _ := g.Depth()
	activity.GetLogger(ctx).Info("Planned asset jobs", "assetId", req.AssetID, "jobs", len(g.Jobs), "depth", depth)
	return g, nil
}

// =============================================================================
// BATCH ACTIVITIES
// =============================================================================

// SubmitJob submits one job and returns its batch job id. Rejections the
// service will not change its mind about are not retried.
func (a *Activities) SubmitJob(ctx context.Context, req batch.SubmitRequest) (string, error) {
	id, err := a.runner.Submit(ctx, req)
	if err != nil {
		if !batch.IsRetryable(err) {
			return "", temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeSubmissionRejected, err)
		}
		activity.GetLogger(ctx).Warn("Job submission failed", "job", req.Name, "error", err)
		return "", err
	}
	activity.GetLogger(ctx).Info("Submitted job", "job", req.Name, "jobId", id, "dependsOn", req.DependsOn)
	return id, nil
}

// DescribeJobs returns the current status of the given jobs.
func (a *Activities) DescribeJobs(ctx context.Context, jobIDs []string) ([]batch.JobDetail, error) {
	return a.runner.Describe(ctx, jobIDs)
}

// =============================================================================
// STATUS ACTIVITIES
// =============================================================================

// RecordEventInput is the input for RecordEvent.
type RecordEventInput struct {
	AssetID string         `json:"assetId"`
	Event   pipeline.Event `json:"event"`
}

// RecordEvent applies a pipeline event to the asset's tasks and statuses.
func (a *Activities) RecordEvent(ctx context.Context, input RecordEventInput) (*status.Result, error) {
	res, err := a.agg.OnEvent(ctx, input.AssetID, input.Event)
	if err != nil {
		if errors.Is(err, status.ErrUnknownAsset) ||
			errors.Is(err, status.ErrInvalidStatus) ||
			errors.Is(err, status.ErrTaskAssetMismatch) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidEvent, err)
		}
		return nil, err
	}
	return &res, nil
}
