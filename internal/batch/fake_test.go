package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossabot/gfw-data-api/internal/jobs"
)

func TestFakeRunner_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRunner()
	f.CompleteAfter = 2
	f.FailJobs = map[string]string{"b": "exit code 1"}

	a, err := f.Submit(ctx, SubmitRequest{Name: "a"})
	require.NoError(t, err)
	b, err := f.Submit(ctx, SubmitRequest{Name: "b", DependsOn: []string{a}})
	require.NoError(t, err)

	details, err := f.Describe(ctx, []string{a, b, "unknown"})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, StatusQueued, details[0].Status)

	details, err = f.Describe(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, details[0].Status)
	assert.Equal(t, StatusFailed, details[1].Status)
	assert.Equal(t, "exit code 1", details[1].StatusReason)
}

func TestFakeRunner_Errors(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRunner()
	f.SubmitErrors = map[string]error{"bad": errors.New("rejected")}
	f.DescribeFailures = 1

	_, err := f.Submit(ctx, SubmitRequest{Name: "bad"})
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable())

	_, err = f.Submit(ctx, SubmitRequest{Name: "orphan", DependsOn: []string{"nope"}})
	require.Error(t, err)

	_, err = f.Describe(ctx, nil)
	var de *DescribeError
	require.ErrorAs(t, err, &de)

	_, err = f.Describe(ctx, nil)
	require.NoError(t, err)
}

func TestFakeRunner_SetStatusByName(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRunner()
	id, err := f.Submit(ctx, SubmitRequest{Name: "a"})
	require.NoError(t, err)

	f.SetStatusByName("a", StatusRunning, "")
	details, err := f.Describe(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, details[0].Status)

	got, ok := f.JobID("a")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Len(t, f.Submissions(), 1)
}

func TestEnvRunner_AppendsEnvironment(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRunner()
	r := WithEnvironment(f, []jobs.EnvVar{{Name: "PGPASSWORD", Value: "secret"}})

	_, err := r.Submit(ctx, SubmitRequest{Name: "a", Environment: []jobs.EnvVar{{Name: "ASSET_ID", Value: "1"}}})
	require.NoError(t, err)

	subs := f.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, []jobs.EnvVar{{Name: "ASSET_ID", Value: "1"}, {Name: "PGPASSWORD", Value: "secret"}}, subs[0].Request.Environment)
}
