// Package pipeline schedules job graphs on a batch service and follows them
// to completion. It is engine agnostic: the same code runs inside a Temporal
// workflow and on plain goroutines, behind the Runtime interface.
package pipeline

import (
	"context"
	"time"
)

// Status is the status carried by a change log entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Event is one status transition. Events with a TaskID belong to the task
// of that external job; events without one describe the pipeline as a whole.
type Event struct {
	TaskID   string    `json:"task_id,omitempty"`
	JobName  string    `json:"job_name,omitempty"`
	Status   Status    `json:"status"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	DateTime time.Time `json:"date_time"`
}

// Sink receives pipeline events.
type Sink interface {
	OnEvent(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) OnEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Outcome is the overall result of a pipeline run.
type Outcome string

const (
	// OutcomePending means polling stopped before every job resolved.
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

const (
	msgScheduledJob   = "Scheduled job %s"
	msgScheduledAll   = "Successfully scheduled batch jobs"
	msgScheduleFailed = "Failed to schedule batch jobs"
	msgJobCompleted   = "Successfully completed job %s"
	msgJobFailed      = "Job %s failed during asset creation"
	msgAllCompleted   = "Successfully completed all scheduled batch jobs for asset creation"
	msgJobsFailed     = "Job failures occurred during asset creation"
)
