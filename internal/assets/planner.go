// Package assets creates dataset assets and turns their sources into job
// graphs for the pipeline.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fossabot/gfw-data-api/internal/config"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/staging"
)

// Request describes one asset pipeline.
type Request struct {
	AssetID         string          `json:"asset_id"`
	Dataset         string          `json:"dataset"`
	Version         string          `json:"version"`
	SourceType      string          `json:"source_type"`
	SourceURIs      []string        `json:"source_uri"`
	CreationOptions json.RawMessage `json:"creation_options,omitempty"`
}

// Source validates the request's source and creation options.
func (r Request) Source() (jobs.Source, error) {
	return jobs.ParseSource(r.SourceType, r.SourceURIs, r.CreationOptions)
}

// Planner stages source files and builds the job graph of an asset.
type Planner struct {
	builder   *jobs.Builder
	stager    *staging.Stager
	statusURL string
}

// NewPlanner creates a planner. A nil stager leaves source URIs untouched.
func NewPlanner(builder *jobs.Builder, stager *staging.Stager, statusURL string) *Planner {
	return &Planner{builder: builder, stager: stager, statusURL: statusURL}
}

// Stage returns req with every source URI moved to durable storage.
func (p *Planner) Stage(ctx context.Context, req Request) (Request, error) {
	if _, err := req.Source(); err != nil {
		return req, err
	}
	if p.stager == nil {
		return req, nil
	}
	uris, err := p.stager.EnsureAll(ctx, req.Dataset, req.Version, req.SourceURIs)
	if err != nil {
		return req, fmt.Errorf("stage sources of %s/%s: %w", req.Dataset, req.Version, err)
	}
	req.SourceURIs = uris
	return req, nil
}

// Plan builds the job graph for req. Jobs carry ASSET_ID and STATUS_URL so
// they can report back through the task callback.
func (p *Planner) Plan(req Request) (*jobs.Graph, error) {
	src, err := req.Source()
	if err != nil {
		return nil, err
	}
	return p.builder.Build(req.Dataset, req.Version, src, p.Env(req.AssetID))
}

// Env returns the callback environment of the asset's jobs.
func (p *Planner) Env(assetID string) []jobs.EnvVar {
	env := []jobs.EnvVar{{Name: "ASSET_ID", Value: assetID}}
	if p.statusURL != "" {
		env = append(env, jobs.EnvVar{Name: "STATUS_URL", Value: p.statusURL})
	}
	return env
}

// SecretEnv converts writer database credentials to libpq variables.
func SecretEnv(s config.DBSecret) []jobs.EnvVar {
	return []jobs.EnvVar{
		{Name: "PGHOST", Value: s.Host},
		{Name: "PGPORT", Value: strconv.Itoa(s.Port)},
		{Name: "PGDATABASE", Value: s.DBName},
		{Name: "PGUSER", Value: s.Username},
		{Name: "PGPASSWORD", Value: s.Password},
	}
}
