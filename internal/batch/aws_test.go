package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossabot/gfw-data-api/internal/jobs"
)

type fakeAPI struct {
	submitted   []*awsbatch.SubmitJobInput
	describes   [][]string
	submitErr   error
	describeErr error
	statuses    map[string]types.JobStatus
}

func (f *fakeAPI) SubmitJob(_ context.Context, in *awsbatch.SubmitJobInput, _ ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, in)
	id := fmt.Sprintf("aws-%d", len(f.submitted))
	return &awsbatch.SubmitJobOutput{JobId: aws.String(id), JobName: in.JobName}, nil
}

func (f *fakeAPI) DescribeJobs(_ context.Context, in *awsbatch.DescribeJobsInput, _ ...func(*awsbatch.Options)) (*awsbatch.DescribeJobsOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	f.describes = append(f.describes, in.Jobs)
	out := &awsbatch.DescribeJobsOutput{}
	for _, id := range in.Jobs {
		status, ok := f.statuses[id]
		if !ok {
			status = types.JobStatusRunnable
		}
		out.Jobs = append(out.Jobs, types.JobDetail{
			JobId:        aws.String(id),
			JobName:      aws.String("name-" + id),
			Status:       status,
			StatusReason: aws.String("reason-" + id),
		})
	}
	return out, nil
}

func TestAWSRunner_SubmitMapsRequest(t *testing.T) {
	api := &fakeAPI{}
	r := NewAWSRunnerWithAPI(api, 0, 0, nil)

	job := jobs.Job{
		Name:                  "load_data_0",
		Queue:                 "aurora_jq",
		Definition:            "postgresql_client_jd",
		Command:               []string{"load_tabular_data.sh", "-d", "ds"},
		VCPUs:                 1,
		MemoryMiB:             1500,
		RetryAttempts:         2,
		AttemptTimeoutSeconds: 7500,
		Environment:           []jobs.EnvVar{{Name: "ASSET_ID", Value: "a-1"}},
	}
	id, err := r.Submit(context.Background(), NewSubmitRequest(job, []string{"aws-0"}))
	require.NoError(t, err)
	assert.Equal(t, "aws-1", id)

	require.Len(t, api.submitted, 1)
	in := api.submitted[0]
	assert.Equal(t, "load_data_0", aws.ToString(in.JobName))
	assert.Equal(t, "aurora_jq", aws.ToString(in.JobQueue))
	assert.Equal(t, "postgresql_client_jd", aws.ToString(in.JobDefinition))
	require.Len(t, in.DependsOn, 1)
	assert.Equal(t, "aws-0", aws.ToString(in.DependsOn[0].JobId))
	assert.Equal(t, types.ArrayJobDependencySequential, in.DependsOn[0].Type)
	assert.Equal(t, job.Command, in.ContainerOverrides.Command)
	assert.Equal(t, "ASSET_ID", aws.ToString(in.ContainerOverrides.Environment[0].Name))
	assert.Equal(t, int32(2), aws.ToInt32(in.RetryStrategy.Attempts))
	assert.Equal(t, int32(7500), aws.ToInt32(in.Timeout.AttemptDurationSeconds))

	resources := map[types.ResourceType]string{}
	for _, rr := range in.ContainerOverrides.ResourceRequirements {
		resources[rr.Type] = aws.ToString(rr.Value)
	}
	assert.Equal(t, "1", resources[types.ResourceTypeVcpu])
	assert.Equal(t, "1500", resources[types.ResourceTypeMemory])
}

func TestAWSRunner_SubmitErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"client exception", &smithy.GenericAPIError{Code: "ClientException", Message: "bad queue", Fault: smithy.FaultClient}, false},
		{"server exception", &smithy.GenericAPIError{Code: "ServerException", Fault: smithy.FaultServer}, true},
		{"throttled", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, true},
		{"network", errors.New("connection reset"), true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewAWSRunnerWithAPI(&fakeAPI{submitErr: tt.err}, 0, 0, nil)
			_, err := r.Submit(context.Background(), SubmitRequest{Name: "create_table"})

			var se *SubmissionError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "create_table", se.JobName)
			assert.Equal(t, tt.retryable, se.Retryable())
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAWSRunner_DescribeBatchesAndNormalizes(t *testing.T) {
	api := &fakeAPI{statuses: map[string]types.JobStatus{
		"id-0":   types.JobStatusSucceeded,
		"id-1":   types.JobStatusFailed,
		"id-2":   types.JobStatusRunning,
		"id-3":   types.JobStatus("COMPLETED"),
		"id-4":   types.JobStatusStarting,
		"id-149": types.JobStatusSubmitted,
	}}
	r := NewAWSRunnerWithAPI(api, 0, 0, nil)

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	details, err := r.Describe(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, details, 150)

	require.Len(t, api.describes, 2)
	assert.Len(t, api.describes[0], 100)
	assert.Len(t, api.describes[1], 50)

	assert.Equal(t, StatusCompleted, details[0].Status)
	assert.Equal(t, StatusFailed, details[1].Status)
	assert.Equal(t, "reason-id-1", details[1].StatusReason)
	assert.Equal(t, StatusRunning, details[2].Status)
	assert.Equal(t, StatusCompleted, details[3].Status)
	assert.Equal(t, StatusRunning, details[4].Status)
	assert.Equal(t, StatusQueued, details[5].Status)
	assert.Equal(t, StatusQueued, details[149].Status)
}

func TestAWSRunner_DescribeError(t *testing.T) {
	r := NewAWSRunnerWithAPI(&fakeAPI{describeErr: errors.New("timeout")}, 0, 0, nil)
	_, err := r.Describe(context.Background(), []string{"a"})

	var de *DescribeError
	require.ErrorAs(t, err, &de)
	assert.True(t, IsRetryable(err))
}

func TestAWSRunner_RateLimitHonoursContext(t *testing.T) {
	r := NewAWSRunnerWithAPI(&fakeAPI{}, 0.001, 1, nil)
	ctx := context.Background()
	_, err := r.Submit(ctx, SubmitRequest{Name: "a"})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Submit(cancelled, SubmitRequest{Name: "b"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}
