package batch

import (
	"context"

	"github.com/fossabot/gfw-data-api/internal/jobs"
)

// EnvRunner adds environment variables to every submitted job. It keeps
// credentials out of job graphs, which are recorded in workflow history.
type EnvRunner struct {
	Runner
	Env []jobs.EnvVar
}

// WithEnvironment wraps r so every submission also carries env.
func WithEnvironment(r Runner, env []jobs.EnvVar) *EnvRunner {
	return &EnvRunner{Runner: r, Env: append([]jobs.EnvVar(nil), env...)}
}

func (r *EnvRunner) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if len(r.Env) > 0 {
		merged := make([]jobs.EnvVar, 0, len(req.Environment)+len(r.Env))
		merged = append(merged, req.Environment...)
		merged = append(merged, r.Env...)
		req.Environment = merged
	}
	return r.Runner.Submit(ctx, req)
}
