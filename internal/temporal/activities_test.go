package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

func newActivityEnv(t *testing.T, runner batch.Runner) (*testsuite.TestActivityEnvironment, *Activities) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	store := status.NewMemoryStore()
	acts := NewActivities(assets.NewPlanner(jobs.NewBuilder(nil, 0), nil, ""), runner, status.NewAggregator(store, nil))
	env.RegisterActivity(acts)
	return env, acts
}

func requireAppErrorType(t *testing.T, err error, want string) {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "got %v", err)
	assert.Equal(t, want, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestSubmitJob(t *testing.T) {
	runner := batch.NewFakeRunner()
	runner.SubmitErrors = map[string]error{"bad": errors.New("invalid job queue")}
	env, acts := newActivityEnv(t, runner)

	val, err := env.ExecuteActivity(acts.SubmitJob, batch.SubmitRequest{Name: "good"})
	require.NoError(t, err)
	var id string
	require.NoError(t, val.Get(&id))
	assert.Equal(t, "job-0001", id)

	_, err = env.ExecuteActivity(acts.SubmitJob, batch.SubmitRequest{Name: "bad"})
	requireAppErrorType(t, err, ErrTypeSubmissionRejected)
}

func TestDescribeJobs(t *testing.T) {
	runner := batch.NewFakeRunner()
	env, acts := newActivityEnv(t, runner)

	val, err := env.ExecuteActivity(acts.SubmitJob, batch.SubmitRequest{Name: "a"})
	require.NoError(t, err)
	var id string
	require.NoError(t, val.Get(&id))
	runner.SetStatus(id, batch.StatusRunning, "")

	val, err = env.ExecuteActivity(acts.DescribeJobs, []string{id})
	require.NoError(t, err)
	var details []batch.JobDetail
	require.NoError(t, val.Get(&details))
	require.Len(t, details, 1)
	assert.Equal(t, batch.StatusRunning, details[0].Status)
}

func TestPlanAssetJobs(t *testing.T) {
	env, acts := newActivityEnv(t, batch.NewFakeRunner())

	req := tableRequest("vector")
	req.SourceURIs = []string{"s3://bucket/countries.shp.zip"}
	req.CreationOptions = nil
	val, err := env.ExecuteActivity(acts.PlanAssetJobs, req)
	require.NoError(t, err)
	var g jobs.Graph
	require.NoError(t, val.Get(&g))
	require.NoError(t, g.Validate())
	assert.Equal(t, "import_vector_data", g.Jobs[0].Name)
	assert.Contains(t, g.Jobs[0].Environment, jobs.EnvVar{Name: "ASSET_ID", Value: testAssetID})

	_, err = env.ExecuteActivity(acts.PlanAssetJobs, tableRequest("raster"))
	requireAppErrorType(t, err, ErrTypeInvalidSource)
}

func TestRecordEvent_UnknownAsset(t *testing.T) {
	env, acts := newActivityEnv(t, batch.NewFakeRunner())

	_, err := env.ExecuteActivity(acts.RecordEvent, RecordEventInput{
		AssetID: "missing",
		Event:   pipeline.Event{Status: pipeline.StatusPending, Message: "Scheduled job a"},
	})
	requireAppErrorType(t, err, ErrTypeInvalidEvent)
}
