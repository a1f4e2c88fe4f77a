// Package jobs builds the graphs of external batch jobs that materialise an asset.
package jobs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid job graph")
	ErrCycle        = errors.New("job graph contains a cycle")
)

// EnvVar is a single environment variable handed to a batch job.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Job describes one unit of work for the batch service. It is never persisted.
type Job struct {
	Name                  string   `json:"name"`
	Profile               string   `json:"profile"`
	Queue                 string   `json:"queue"`
	Definition            string   `json:"definition"`
	Command               []string `json:"command"`
	VCPUs                 int      `json:"vcpus"`
	MemoryMiB             int      `json:"memory"`
	RetryAttempts         int      `json:"retryAttempts"`
	AttemptTimeoutSeconds int      `json:"attemptTimeoutSeconds"`
	Parents               []string `json:"parents,omitempty"`
	Environment           []EnvVar `json:"environment,omitempty"`
}

// Graph is an ordered set of jobs linked by parent names. Order is the
// order the builder emitted the jobs in and is preserved by every consumer.
type Graph struct {
	Jobs []Job `json:"jobs"`
}

// GraphError wraps graph validation failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

// Names returns job names in graph order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.Jobs))
	for i, j := range g.Jobs {
		names[i] = j.Name
	}
	return names
}

// Job returns the job with the given name.
func (g *Graph) Job(name string) (Job, bool) {
	for _, j := range g.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// Roots returns the jobs without parents, in graph order.
func (g *Graph) Roots() []Job {
	var roots []Job
	for _, j := range g.Jobs {
		if len(j.Parents) == 0 {
			roots = append(roots, j)
		}
	}
	return roots
}

// Validate rejects empty graphs, duplicate or empty names, dangling parent
// references and cycles.
func (g *Graph) Validate() error {
	if g == nil || len(g.Jobs) == 0 {
		return invalidf("graph has no jobs")
	}
	seen := make(map[string]struct{}, len(g.Jobs))
	for _, j := range g.Jobs {
		if strings.TrimSpace(j.Name) == "" {
			return invalidf("job with empty name")
		}
		if _, dup := seen[j.Name]; dup {
			return invalidf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = struct{}{}
	}
	for _, j := range g.Jobs {
		for _, p := range j.Parents {
			if p == j.Name {
				return invalidf("job %q lists itself as parent", j.Name)
			}
			if _, ok := seen[p]; !ok {
				return invalidf("job %q references unknown parent %q", j.Name, p)
			}
		}
	}
	_, err := g.Depth()
	return err
}

// Depth returns the number of jobs on the longest parent chain. A graph of
// independent jobs has depth 1. The scheduler needs exactly Depth rounds.
func (g *Graph) Depth() (int, error) {
	index := make(map[string]int, len(g.Jobs))
	for i, j := range g.Jobs {
		index[j.Name] = i
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.Jobs))
	depth := make([]int, len(g.Jobs))

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		d := 1
		for _, p := range g.Jobs[i].Parents {
			pi, ok := index[p]
			if !ok {
				return invalidf("job %q references unknown parent %q", g.Jobs[i].Name, p)
			}
			switch color[pi] {
			case gray:
				return &GraphError{Kind: ErrCycle, Msg: fmt.Sprintf("%s -> %s", g.Jobs[i].Name, p)}
			case white:
				if err := visit(pi); err != nil {
					return err
				}
			}
			if depth[pi]+1 > d {
				d = depth[pi] + 1
			}
		}
		depth[i] = d
		color[i] = black
		return nil
	}

	deepest := 0
	for i := range g.Jobs {
		if color[i] == white {
			if err := visit(i); err != nil {
				return 0, err
			}
		}
		if depth[i] > deepest {
			deepest = depth[i]
		}
	}
	return deepest, nil
}
