package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"
	"go.temporal.io/sdk/log"
	"golang.org/x/time/rate"
)

// describeLimit is the most job ids DescribeJobs accepts per call.
const describeLimit = 100

// API is the subset of the AWS Batch client the runner uses.
type API interface {
	SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, params *awsbatch.DescribeJobsInput, optFns ...func(*awsbatch.Options)) (*awsbatch.DescribeJobsOutput, error)
}

// AWSConfig configures the AWS Batch runner.
type AWSConfig struct {
	Region      string
	Endpoint    string
	RateLimit   float64
	RateBurst   int
	MaxAttempts int
}

// AWSRunner implements Runner on AWS Batch.
type AWSRunner struct {
	api     API
	limiter *rate.Limiter
	logger  log.Logger
}

// NewAWSRunner loads the default AWS credential chain and builds a runner.
// The SDK's standard retryer backs off with jitter on throttling and server
// faults; the limiter keeps bursts of submissions under the account quota.
func NewAWSRunner(ctx context.Context, cfg AWSConfig, logger log.Logger) (*AWSRunner, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultMaxAttempts
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := awsbatch.NewFromConfig(awsCfg, func(o *awsbatch.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewAWSRunnerWithAPI(client, cfg.RateLimit, cfg.RateBurst, logger), nil
}

// NewAWSRunnerWithAPI wraps an existing client. A non-positive limit
// disables rate limiting.
func NewAWSRunnerWithAPI(api API, limit float64, burst int, logger log.Logger) *AWSRunner {
	lim := rate.NewLimiter(rate.Inf, 0)
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return &AWSRunner{api: api, limiter: lim, logger: logger}
}

// Submit submits one job with sequential dependencies on req.DependsOn.
func (r *AWSRunner) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", NewSubmissionError(req.Name, err, false)
	}

	out, err := r.api.SubmitJob(ctx, submitInput(req))
	if err != nil {
		retryable := retryableAPIError(err)
		if r.logger != nil {
			r.logger.Warn("Batch job submission failed", "job", req.Name, "retryable", retryable, "error", err)
		}
		return "", NewSubmissionError(req.Name, err, retryable)
	}
	if out.JobId == nil || *out.JobId == "" {
		return "", NewSubmissionError(req.Name, errors.New("service returned no job id"), false)
	}
	if r.logger != nil {
		r.logger.Debug("Submitted batch job", "job", req.Name, "jobId", *out.JobId, "dependsOn", len(req.DependsOn))
	}
	return *out.JobId, nil
}

// Describe reports the status of jobIDs, querying at most 100 ids per call.
func (r *AWSRunner) Describe(ctx context.Context, jobIDs []string) ([]JobDetail, error) {
	var details []JobDetail
	for start := 0; start < len(jobIDs); start += describeLimit {
		end := start + describeLimit
		if end > len(jobIDs) {
			end = len(jobIDs)
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := r.api.DescribeJobs(ctx, &awsbatch.DescribeJobsInput{Jobs: jobIDs[start:end]})
		if err != nil {
			return nil, &DescribeError{Err: err}
		}
		for _, j := range out.Jobs {
			details = append(details, JobDetail{
				JobID:        aws.ToString(j.JobId),
				JobName:      aws.ToString(j.JobName),
				Status:       normalizeStatus(string(j.Status)),
				StatusReason: aws.ToString(j.StatusReason),
			})
		}
	}
	return details, nil
}

func submitInput(req SubmitRequest) *awsbatch.SubmitJobInput {
	deps := make([]types.JobDependency, 0, len(req.DependsOn))
	for _, id := range req.DependsOn {
		deps = append(deps, types.JobDependency{
			JobId: aws.String(id),
			Type:  types.ArrayJobDependencySequential,
		})
	}

	env := make([]types.KeyValuePair, 0, len(req.Environment))
	for _, e := range req.Environment {
		env = append(env, types.KeyValuePair{Name: aws.String(e.Name), Value: aws.String(e.Value)})
	}

	in := &awsbatch.SubmitJobInput{
		JobName:       aws.String(req.Name),
		JobQueue:      aws.String(req.Queue),
		JobDefinition: aws.String(req.Definition),
		DependsOn:     deps,
		ContainerOverrides: &types.ContainerOverrides{
			Command:     req.Command,
			Environment: env,
			ResourceRequirements: []types.ResourceRequirement{
				{Type: types.ResourceTypeVcpu, Value: aws.String(strconv.Itoa(req.VCPUs))},
				{Type: types.ResourceTypeMemory, Value: aws.String(strconv.Itoa(req.MemoryMiB))},
			},
		},
	}
	if req.RetryAttempts > 0 {
		in.RetryStrategy = &types.RetryStrategy{Attempts: aws.Int32(int32(req.RetryAttempts))}
	}
	if req.AttemptTimeoutSeconds > 0 {
		in.Timeout = &types.JobTimeout{AttemptDurationSeconds: aws.Int32(int32(req.AttemptTimeoutSeconds))}
	}
	return in
}

// normalizeStatus folds the service vocabulary into Status. Batch reports
// SUCCEEDED; COMPLETED is accepted as well.
func normalizeStatus(s string) Status {
	switch s {
	case string(types.JobStatusSucceeded), "COMPLETED":
		return StatusCompleted
	case string(types.JobStatusFailed):
		return StatusFailed
	case string(types.JobStatusStarting), string(types.JobStatusRunning):
		return StatusRunning
	default:
		return StatusQueued
	}
}

// retryableAPIError treats server faults and throttling as transient and
// every other API error (ClientException) as a rejection. Errors that never
// reached the service are transient.
func retryableAPIError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return true
	}
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ThrottlingException", "ServerException":
		return true
	}
	return false
}
