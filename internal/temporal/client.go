// Package temporal runs asset pipelines as Temporal workflows.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/config"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
)

// Client wraps the Temporal client with helper methods.
type Client struct {
	client    client.Client
	taskQueue string
	pipeline  PipelineSettings
}

// PipelineSettings bound every asset pipeline started through a Client.
type PipelineSettings struct {
	MaxRounds        int
	PollInterval     time.Duration
	PollCyclesPerRun int
}

// SettingsFromConfig extracts the pipeline settings of cfg.
func SettingsFromConfig(cfg *config.Config) PipelineSettings {
	return PipelineSettings{
		MaxRounds:        pipeline.RoundCap(cfg.SchedulerMaxRound, cfg.ChunkSize),
		PollInterval:     cfg.PollInterval,
		PollCyclesPerRun: cfg.PollCyclesPerRun,
	}
}

// NewClient creates a new Temporal client.
func NewClient(cfg *config.Config) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return NewClientWith(c, cfg.TemporalTaskQueue, SettingsFromConfig(cfg)), nil
}

// NewClientWith wraps an existing Temporal client.
func NewClientWith(c client.Client, taskQueue string, settings PipelineSettings) *Client {
	return &Client{client: c, taskQueue: taskQueue, pipeline: settings}
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.client.Close()
}

// TaskQueue returns the default task queue name.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Client returns the underlying Temporal client.
func (c *Client) Client() client.Client {
	return c.client
}

// =============================================================================
// WORKFLOW EXECUTION HELPERS
// =============================================================================

// WorkflowOptions creates the start options of an asset pipeline. Pipelines
// poll for hours and continue as new, so there is no execution timeout.
// Failures are recorded on the asset; the workflow itself is not retried.
func (c *Client) WorkflowOptions(workflowID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                  workflowID,
		TaskQueue:           c.taskQueue,
		WorkflowTaskTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    1,
		},
	}
}

// PipelineWorkflowID is the workflow id of an asset's pipeline.
func PipelineWorkflowID(assetID string) string {
	return "asset-pipeline-" + assetID
}

// Launch starts the asset pipeline of req without waiting for it.
func (c *Client) Launch(ctx context.Context, req assets.Request) error {
	input := AssetPipelineInput{
		Request:          req,
		MaxRounds:        c.pipeline.MaxRounds,
		PollInterval:     c.pipeline.PollInterval,
		PollCyclesPerRun: c.pipeline.PollCyclesPerRun,
	}
	opts := c.WorkflowOptions(PipelineWorkflowID(req.AssetID))
	if _, err := c.client.ExecuteWorkflow(ctx, opts, AssetPipelineWorkflow, input); err != nil {
		return fmt.Errorf("start pipeline workflow for asset %s: %w", req.AssetID, err)
	}
	return nil
}
