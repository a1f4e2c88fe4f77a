package jobs

import (
	"fmt"
)

// Builder turns a validated source into the job graph that materialises it.
type Builder struct {
	profiles  Profiles
	chunkSize int
}

// NewBuilder creates a builder. A non-positive chunkSize uses DefaultChunkSize.
func NewBuilder(profiles Profiles, chunkSize int) *Builder {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Builder{profiles: profiles, chunkSize: chunkSize}
}

// Build returns the job graph for src. Every job receives env. The graph is
// validated before it is returned.
func (b *Builder) Build(dataset, version string, src Source, env []EnvVar) (*Graph, error) {
	if dataset == "" || version == "" {
		return nil, fmt.Errorf("%w: dataset and version are required", ErrInvalidSource)
	}

	gb := &graphBuilder{profiles: b.profiles, env: env}
	switch s := src.(type) {
	case *TableSource:
		b.buildTable(gb, dataset, version, s)
	case *VectorSource:
		b.buildVector(gb, dataset, version, s)
	case nil:
		return nil, fmt.Errorf("%w: source is nil", ErrInvalidSource)
	default:
		return nil, fmt.Errorf("%w: unsupported source %T", ErrInvalidSource, src)
	}
	if gb.err != nil {
		return nil, gb.err
	}

	g := &Graph{Jobs: gb.jobs}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// graphBuilder accumulates jobs in emission order and keeps the first error.
type graphBuilder struct {
	profiles Profiles
	env      []EnvVar
	jobs     []Job
	err      error
}

func (gb *graphBuilder) add(name, profile string, parents []string, command ...string) string {
	if gb.err != nil {
		return name
	}
	prof, err := gb.profiles.lookup(profile)
	if err != nil {
		gb.err = err
		return name
	}
	gb.jobs = append(gb.jobs, Job{
		Name:                  name,
		Profile:               profile,
		Queue:                 prof.Queue,
		Definition:            prof.Definition,
		Command:               command,
		VCPUs:                 prof.VCPUs,
		MemoryMiB:             prof.MemoryMiB,
		RetryAttempts:         prof.RetryAttempts,
		AttemptTimeoutSeconds: prof.AttemptTimeoutSeconds,
		Parents:               append([]string(nil), parents...),
		Environment:           append([]EnvVar(nil), gb.env...),
	})
	return name
}

func (gb *graphBuilder) fail(err error) {
	if gb.err == nil {
		gb.err = err
	}
}
