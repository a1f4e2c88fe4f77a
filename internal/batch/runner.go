// Package batch is the client side of the external batch-compute service.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fossabot/gfw-data-api/internal/jobs"
)

// Status is the normalised lifecycle state of an external job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job will not change state again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SubmitRequest is everything the service needs to run one job.
// DependsOn holds external job ids; every dependency is sequential.
type SubmitRequest struct {
	Name                  string        `json:"name"`
	Queue                 string        `json:"queue"`
	Definition            string        `json:"definition"`
	Command               []string      `json:"command"`
	VCPUs                 int           `json:"vcpus"`
	MemoryMiB             int           `json:"memory"`
	RetryAttempts         int           `json:"retryAttempts"`
	AttemptTimeoutSeconds int           `json:"attemptTimeoutSeconds"`
	DependsOn             []string      `json:"dependsOn,omitempty"`
	Environment           []jobs.EnvVar `json:"environment,omitempty"`
}

// NewSubmitRequest maps a graph job and its parents' external ids to a request.
func NewSubmitRequest(job jobs.Job, dependsOn []string) SubmitRequest {
	return SubmitRequest{
		Name:                  job.Name,
		Queue:                 job.Queue,
		Definition:            job.Definition,
		Command:               append([]string(nil), job.Command...),
		VCPUs:                 job.VCPUs,
		MemoryMiB:             job.MemoryMiB,
		RetryAttempts:         job.RetryAttempts,
		AttemptTimeoutSeconds: job.AttemptTimeoutSeconds,
		DependsOn:             append([]string(nil), dependsOn...),
		Environment:           append([]jobs.EnvVar(nil), job.Environment...),
	}
}

// JobDetail is one entry of a describe response.
type JobDetail struct {
	JobID        string `json:"jobId"`
	JobName      string `json:"jobName"`
	Status       Status `json:"status"`
	StatusReason string `json:"statusReason,omitempty"`
}

// Runner submits jobs and reports their status. Describe may omit ids the
// service does not know yet; callers treat missing ids as not terminal.
type Runner interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Describe(ctx context.Context, jobIDs []string) ([]JobDetail, error)
}

// SubmissionError is returned when the service rejects a submit call.
type SubmissionError struct {
	JobName   string
	Err       error
	retryable bool
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit job %s: %v", e.JobName, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same request may succeed.
func (e *SubmissionError) Retryable() bool { return e.retryable }

// NewSubmissionError wraps err for the named job.
func NewSubmissionError(jobName string, err error, retryable bool) *SubmissionError {
	return &SubmissionError{JobName: jobName, Err: err, retryable: retryable}
}

// DescribeError is a failure of the describe call itself. The jobs it asked
// about are unaffected, so callers retry it.
type DescribeError struct {
	Err error
}

func (e *DescribeError) Error() string { return "describe jobs: " + e.Err.Error() }

func (e *DescribeError) Unwrap() error { return e.Err }

// IsRetryable reports whether err from a Runner call is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var de *DescribeError
	return errors.As(err, &de)
}
