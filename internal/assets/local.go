package assets

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/log"

	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

// MsgPlanFailed is recorded when sources cannot be staged or planned.
const MsgPlanFailed = "Failed to plan batch jobs"

// LocalLauncher runs asset pipelines on goroutines of the current process.
// It is used when no Temporal cluster is configured.
type LocalLauncher struct {
	ctx     context.Context
	planner *Planner
	runner  batch.Runner
	agg     *status.Aggregator
	opts    pipeline.Options
	logger  log.Logger

	// RetryBackoff is the first delay between retries of batch calls.
	RetryBackoff time.Duration

	wg sync.WaitGroup
}

// NewLocalLauncher creates a launcher whose pipelines stop when ctx is done.
func NewLocalLauncher(ctx context.Context, planner *Planner, runner batch.Runner, agg *status.Aggregator, opts pipeline.Options, logger log.Logger) *LocalLauncher {
	return &LocalLauncher{
		ctx:          ctx,
		planner:      planner,
		runner:       runner,
		agg:          agg,
		opts:         opts,
		logger:       logger,
		RetryBackoff: time.Second,
	}
}

// Launch starts the pipeline in the background. The request context only
// scopes the call; the pipeline outlives it.
func (l *LocalLauncher) Launch(_ context.Context, req Request) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		outcome, err := l.Run(req)
		if l.logger == nil {
			return
		}
		if err != nil {
			l.logger.Error("Asset pipeline stopped", "assetId", req.AssetID, "outcome", outcome, "error", err)
			return
		}
		l.logger.Info("Asset pipeline finished", "assetId", req.AssetID, "outcome", outcome)
	}()
	return nil
}

// Run stages, plans, schedules and polls one asset pipeline to resolution.
func (l *LocalLauncher) Run(req Request) (pipeline.Outcome, error) {
	rt := pipeline.NewLocalRuntime(l.ctx, l.runner, l.agg.Sink(req.AssetID), l.logger)
	rt.Backoff = l.RetryBackoff

	staged, err := l.planner.Stage(l.ctx, req)
	if err != nil {
		return pipeline.OutcomeFailed, l.planFailed(rt, err)
	}
	g, err := l.planner.Plan(staged)
	if err != nil {
		return pipeline.OutcomeFailed, l.planFailed(rt, err)
	}
	return pipeline.Run(rt, g, l.opts)
}

func (l *LocalLauncher) planFailed(rt pipeline.Runtime, err error) error {
	if emitErr := rt.Emit(pipeline.Event{
		Status:   pipeline.StatusFailed,
		Message:  MsgPlanFailed,
		Detail:   err.Error(),
		DateTime: rt.Now(),
	}); emitErr != nil && l.logger != nil {
		l.logger.Error("Failed to record planning failure", "error", emitErr)
	}
	return err
}

// Wait blocks until every launched pipeline has returned.
func (l *LocalLauncher) Wait() {
	l.wg.Wait()
}
