package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/fossabot/gfw-data-api/internal/batch"
)

// LocalRuntime runs a pipeline on goroutines in the current process.
// Submissions of one round run concurrently; sleeps are context-aware timers.
type LocalRuntime struct {
	ctx    context.Context
	runner batch.Runner
	sink   Sink
	logger log.Logger

	// Attempts bounds retries of retryable submit and describe failures.
	Attempts int
	// Backoff is the first retry delay; it doubles per attempt, with jitter.
	Backoff time.Duration
	// Clock returns the event timestamp. Defaults to time.Now in UTC.
	Clock func() time.Time
}

// NewLocalRuntime builds a runtime bound to ctx. Cancelling ctx stops the
// pipeline; jobs already submitted keep running on the service.
func NewLocalRuntime(ctx context.Context, runner batch.Runner, sink Sink, logger log.Logger) *LocalRuntime {
	return &LocalRuntime{
		ctx:      ctx,
		runner:   runner,
		sink:     sink,
		logger:   logger,
		Attempts: 5,
		Backoff:  time.Second,
		Clock:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *LocalRuntime) SubmitRound(round int, reqs []batch.SubmitRequest) ([]string, error) {
	ids := make([]string, len(reqs))
	// Siblings are not cancelled when one submission fails, so every job
	// the service accepts gets its id recorded.
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			return r.retry(r.ctx, func() error {
				id, err := r.runner.Submit(r.ctx, req)
				if err != nil {
					return err
				}
				ids[i] = id
				return nil
			})
		})
	}
	err := g.Wait()
	if r.logger != nil {
		r.logger.Info("Submitted scheduling round", "round", round, "jobs", len(reqs), "error", err)
	}
	return ids, err
}

func (r *LocalRuntime) Describe(jobIDs []string) ([]batch.JobDetail, error) {
	var details []batch.JobDetail
	err := r.retry(r.ctx, func() error {
		var err error
		details, err = r.runner.Describe(r.ctx, jobIDs)
		return err
	})
	return details, err
}

func (r *LocalRuntime) Emit(ev Event) error {
	return r.sink.OnEvent(r.ctx, ev)
}

func (r *LocalRuntime) Sleep(d time.Duration) error {
	return sleep(r.ctx, d)
}

func (r *LocalRuntime) Now() time.Time {
	return r.Clock()
}

// retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up.
func (r *LocalRuntime) retry(ctx context.Context, fn func() error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := r.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !batch.IsRetryable(err) || attempt >= attempts {
			return err
		}
		if r.logger != nil {
			r.logger.Warn("Batch call failed, retrying", "attempt", attempt, "error", err)
		}
		if delay > 0 {
			jittered := delay/2 + rand.N(delay/2+1)
			if serr := sleep(ctx, jittered); serr != nil {
				return err
			}
			delay *= 2
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
