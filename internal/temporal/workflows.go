package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
)

// =============================================================================
// WORKFLOW AND ACTIVITY NAMES
// =============================================================================

const (
	AssetPipelineWorkflow = "assetPipelineWorkflow"

	activityStageSources  = "StageSources"
	activityPlanAssetJobs = "PlanAssetJobs"
	activitySubmitJob     = "SubmitJob"
	activityDescribeJobs  = "DescribeJobs"
	activityRecordEvent   = "RecordEvent"
)

// =============================================================================
// ACTIVITY OPTIONS
// =============================================================================

var defaultActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 10 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	},
}

var submitActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 2 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        time.Minute,
		MaximumAttempts:        5,
		NonRetryableErrorTypes: []string{ErrTypeSubmissionRejected},
	},
}

var describeActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second * 5,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute * 5,
		MaximumAttempts:    10,
	},
}

var recordActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        time.Minute,
		MaximumAttempts:        10,
		NonRetryableErrorTypes: []string{ErrTypeInvalidEvent},
	},
}

// =============================================================================
// WORKFLOW INPUTS/OUTPUTS
// =============================================================================

// AssetPipelineInput is the input for AssetPipelineWorkflow. Tracker is set
// when a run continues as new with jobs still pending.
type AssetPipelineInput struct {
	Request          assets.Request    `json:"request"`
	MaxRounds        int               `json:"maxRounds"`
	PollInterval     time.Duration     `json:"pollInterval"`
	PollCyclesPerRun int               `json:"pollCyclesPerRun"`
	Tracker          *pipeline.Tracker `json:"tracker,omitempty"`
}

// AssetPipelineResult is the output of AssetPipelineWorkflow.
type AssetPipelineResult struct {
	AssetID string           `json:"assetId"`
	Outcome pipeline.Outcome `json:"outcome"`
	Jobs    int              `json:"jobs"`
}

// =============================================================================
// ASSET PIPELINE WORKFLOW
// =============================================================================

// AssetPipelineWorkflowFunc stages the asset's sources, plans its job graph,
// schedules it round by round and polls the jobs until they all complete or
// one fails. Job failures are an outcome, not a workflow error.
func AssetPipelineWorkflowFunc(ctx workflow.Context, input AssetPipelineInput) (*AssetPipelineResult, error) {
	logger := workflow.GetLogger(ctx)
	assetID := input.Request.AssetID
	rt := &workflowRuntime{ctx: ctx, assetID: assetID}

	tracker := input.Tracker
	if tracker == nil {
		logger.Info("Starting asset pipeline", "assetId", assetID, "dataset", input.Request.Dataset, "version", input.Request.Version)

		actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)
		var staged assets.Request
		if err := workflow.ExecuteActivity(actCtx, activityStageSources, input.Request).Get(ctx, &staged); err != nil {
			return nil, rt.planFailed(err)
		}
		var graph jobs.Graph
		if err := workflow.ExecuteActivity(actCtx, activityPlanAssetJobs, staged).Get(ctx, &graph); err != nil {
			return nil, rt.planFailed(err)
		}

		var err error
		tracker, err = pipeline.Start(rt, &graph, input.MaxRounds)
		if err != nil {
			logger.Error("Scheduling failed", "assetId", assetID, "error", err)
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeScheduling, err)
		}
	}

	outcome, err := pipeline.Poll(rt, tracker, input.PollInterval, input.PollCyclesPerRun)
	if err != nil {
		return nil, err
	}
	if outcome == pipeline.OutcomePending {
		logger.Info("Continuing asset pipeline as new", "assetId", assetID, "pending", len(tracker.Pending()))
		input.Tracker = tracker
		return nil, workflow.NewContinueAsNewError(ctx, AssetPipelineWorkflow, input)
	}

	logger.Info("Asset pipeline finished", "assetId", assetID, "outcome", outcome)
	return &AssetPipelineResult{AssetID: assetID, Outcome: outcome, Jobs: len(tracker.IDs)}, nil
}

// workflowRuntime runs the pipeline engine inside a workflow. Batch calls
// and status updates are activities; sleeps are durable timers.
type workflowRuntime struct {
	ctx     workflow.Context
	assetID string
}

func (r *workflowRuntime) SubmitRound(round int, reqs []batch.SubmitRequest) ([]string, error) {
	ctx := workflow.WithActivityOptions(r.ctx, submitActivityOptions)
	futures := make([]workflow.Future, len(reqs))
	for i, req := range reqs {
		futures[i] = workflow.ExecuteActivity(ctx, activitySubmitJob, req)
	}

	ids := make([]string, len(reqs))
	var firstErr error
	for i, f := range futures {
		if err := f.Get(r.ctx, &ids[i]); err != nil {
			ids[i] = ""
			if firstErr == nil {
				firstErr = fmt.Errorf("round %d: submit %s: %w", round, reqs[i].Name, err)
			}
		}
	}
	return ids, firstErr
}

func (r *workflowRuntime) Describe(jobIDs []string) ([]batch.JobDetail, error) {
	ctx := workflow.WithActivityOptions(r.ctx, describeActivityOptions)
	var details []batch.JobDetail
	if err := workflow.ExecuteActivity(ctx, activityDescribeJobs, jobIDs).Get(r.ctx, &details); err != nil {
		return nil, err
	}
	return details, nil
}

func (r *workflowRuntime) Emit(ev pipeline.Event) error {
	ctx := workflow.WithActivityOptions(r.ctx, recordActivityOptions)
	return workflow.ExecuteActivity(ctx, activityRecordEvent, RecordEventInput{AssetID: r.assetID, Event: ev}).Get(r.ctx, nil)
}

func (r *workflowRuntime) Sleep(d time.Duration) error {
	return workflow.Sleep(r.ctx, d)
}

func (r *workflowRuntime) Now() time.Time {
	return workflow.Now(r.ctx).UTC()
}

// planFailed records a staging or planning failure on the asset and
// returns err.
func (r *workflowRuntime) planFailed(err error) error {
	if emitErr := r.Emit(pipeline.Event{
		Status:   pipeline.StatusFailed,
		Message:  assets.MsgPlanFailed,
		Detail:   err.Error(),
		DateTime: r.Now(),
	}); emitErr != nil {
		workflow.GetLogger(r.ctx).Error("Failed to record planning failure", "assetId", r.assetID, "error", emitErr)
	}
	return err
}

// Registry is the registration surface shared by workers and test environments.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivity(a interface{})
}

// Register registers the asset pipeline workflow and its activities.
func Register(r Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(AssetPipelineWorkflowFunc, workflow.RegisterOptions{Name: AssetPipelineWorkflow})
	r.RegisterActivity(acts)
}
