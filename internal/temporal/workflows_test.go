package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

const testAssetID = "asset-1"

type fixture struct {
	env    *testsuite.TestWorkflowEnvironment
	store  *status.MemoryStore
	runner *batch.FakeRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := status.NewMemoryStore()
	require.NoError(t, store.CreateDataset(ctx, "ds"))
	require.NoError(t, store.CreateVersion(ctx, &status.Version{Dataset: "ds", Version: "v1"}))
	require.NoError(t, store.CreateAsset(ctx, &status.Asset{
		AssetID: testAssetID, Dataset: "ds", Version: "v1",
		AssetType: assets.DefaultAssetType, AssetURI: "/ds/v1/features", IsDefault: true,
	}))

	runner := batch.NewFakeRunner()
	runner.CompleteAfter = 2

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	planner := assets.NewPlanner(jobs.NewBuilder(nil, 0), nil, "http://api/tasks")
	Register(env, NewActivities(planner, runner, status.NewAggregator(store, nil)))

	return &fixture{env: env, store: store, runner: runner}
}

func tableRequest(sourceType string) assets.Request {
	return assets.Request{
		AssetID:         testAssetID,
		Dataset:         "ds",
		Version:         "v1",
		SourceType:      sourceType,
		SourceURIs:      []string{"s3://bucket/a.tsv", "s3://bucket/b.tsv"},
		CreationOptions: json.RawMessage(`{"delimiter":"\t"}`),
	}
}

func pipelineInput(req assets.Request) AssetPipelineInput {
	return AssetPipelineInput{
		Request:          req,
		MaxRounds:        64,
		PollInterval:     30 * time.Second,
		PollCyclesPerRun: 100,
	}
}

func (f *fixture) asset(t *testing.T) *status.Asset {
	t.Helper()
	a, err := f.store.GetAsset(context.Background(), testAssetID)
	require.NoError(t, err)
	return a
}

func messages(entries []status.ChangeLog) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestAssetPipelineWorkflow_Success(t *testing.T) {
	f := newFixture(t)
	f.env.ExecuteWorkflow(AssetPipelineWorkflow, pipelineInput(tableRequest("table")))

	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())

	var res AssetPipelineResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.Equal(t, pipeline.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Jobs)

	subs := f.runner.Submissions()
	require.Len(t, subs, 3)
	assert.Equal(t, "create_table", subs[0].Request.Name)
	assert.Equal(t, []string{subs[0].JobID}, subs[1].Request.DependsOn)
	assert.Equal(t, []string{subs[0].JobID}, subs[2].Request.DependsOn)

	a := f.asset(t)
	assert.Equal(t, status.Saved, a.Status)
	log := messages(a.ChangeLog)
	assert.Equal(t, "Scheduled job create_table", log[0])
	assert.Contains(t, log, "Successfully scheduled batch jobs")
	assert.Equal(t, "Successfully completed all scheduled batch jobs for asset creation", log[len(log)-1])

	version, err := f.store.GetVersion(context.Background(), "ds", "v1")
	require.NoError(t, err)
	assert.Equal(t, status.Saved, version.Status)

	tasks, err := f.store.ListTasks(context.Background(), testAssetID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, pipeline.StatusSuccess, task.Status, task.TaskID)
	}
}

func TestAssetPipelineWorkflow_JobFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.FailJobs = map[string]string{"load_data_1": "Essential container in task exited"}
	f.env.ExecuteWorkflow(AssetPipelineWorkflow, pipelineInput(tableRequest("table")))

	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())

	var res AssetPipelineResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.Equal(t, pipeline.OutcomeFailed, res.Outcome)

	a := f.asset(t)
	assert.Equal(t, status.Failed, a.Status)
	assert.Contains(t, messages(a.ChangeLog), "Job load_data_1 failed during asset creation")
	assert.Equal(t, "Job failures occurred during asset creation", a.ChangeLog[len(a.ChangeLog)-1].Message)
}

func TestAssetPipelineWorkflow_SubmissionRejected(t *testing.T) {
	f := newFixture(t)
	f.runner.SubmitErrors = map[string]error{"create_table": errors.New("job definition not found")}
	f.env.ExecuteWorkflow(AssetPipelineWorkflow, pipelineInput(tableRequest("table")))

	require.True(t, f.env.IsWorkflowCompleted())
	err := f.env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeScheduling, appErr.Type())
	assert.Empty(t, f.runner.Submissions())

	a := f.asset(t)
	assert.Equal(t, status.Failed, a.Status)
	assert.Equal(t, "Failed to schedule batch jobs", a.ChangeLog[len(a.ChangeLog)-1].Message)
}

func TestAssetPipelineWorkflow_InvalidSource(t *testing.T) {
	f := newFixture(t)
	f.env.ExecuteWorkflow(AssetPipelineWorkflow, pipelineInput(tableRequest("raster")))

	require.True(t, f.env.IsWorkflowCompleted())
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(f.env.GetWorkflowError(), &appErr))
	assert.Equal(t, ErrTypeInvalidSource, appErr.Type())

	a := f.asset(t)
	assert.Equal(t, status.Failed, a.Status)
	assert.Equal(t, assets.MsgPlanFailed, a.ChangeLog[len(a.ChangeLog)-1].Message)
}

func TestAssetPipelineWorkflow_ContinuesAsNew(t *testing.T) {
	f := newFixture(t)
	f.runner.CompleteAfter = 10
	input := pipelineInput(tableRequest("table"))
	input.PollCyclesPerRun = 2
	f.env.ExecuteWorkflow(AssetPipelineWorkflow, input)

	require.True(t, f.env.IsWorkflowCompleted())
	assert.True(t, workflow.IsContinueAsNewError(f.env.GetWorkflowError()))
	assert.Len(t, f.runner.Submissions(), 3)
	assert.Equal(t, status.Pending, f.asset(t).Status)
}

func TestAssetPipelineWorkflow_ResumesFromTracker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := make([]string, 0, 2)
	names := make(map[string]string)
	for _, name := range []string{"a", "b"} {
		id, err := f.runner.Submit(ctx, batch.SubmitRequest{Name: name})
		require.NoError(t, err)
		ids = append(ids, id)
		names[id] = name
		f.runner.SetStatus(id, batch.StatusCompleted, "")
	}

	input := pipelineInput(tableRequest("table"))
	input.Tracker = pipeline.NewTracker(ids, names)
	f.env.ExecuteWorkflow(AssetPipelineWorkflow, input)

	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())

	var res AssetPipelineResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.Equal(t, pipeline.OutcomeSuccess, res.Outcome)
	assert.Len(t, f.runner.Submissions(), 2, "a resumed run must not resubmit")
	assert.Equal(t, status.Saved, f.asset(t).Status)
}
