package pipeline

import (
	"fmt"

	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/jobs"
)

// SchedulingError aborts a pipeline before or while jobs are submitted.
// Submitted counts the jobs already accepted by the batch service.
type SchedulingError struct {
	Reason    string
	Submitted int
	Err       error
}

func (e *SchedulingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scheduling failed: %s: %v", e.Reason, e.Err)
	}
	return "scheduling failed: " + e.Reason
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// Submitter submits every request of one round. The returned ids align with
// reqs; on error, ids of requests that were accepted are still filled in.
type Submitter interface {
	SubmitRound(round int, reqs []batch.SubmitRequest) ([]string, error)
}

// Schedule submits g round by round and returns job name to external id.
//
// Round 0 submits every root. Each later round submits, in graph order,
// every job whose parents were all submitted in earlier rounds, depending
// on their external ids. The graph is checked before anything is submitted,
// so a cycle, an unknown parent or a graph needing more than maxRounds
// rounds fails with zero submissions.
func Schedule(g *jobs.Graph, maxRounds int, sub Submitter) (map[string]string, error) {
	if g == nil || len(g.Jobs) == 0 {
		return nil, &SchedulingError{Reason: "empty job graph"}
	}
	if len(g.Roots()) == 0 {
		return nil, &SchedulingError{Reason: "no independent jobs in graph, cannot start scheduling"}
	}
	if err := g.Validate(); err != nil {
		return nil, &SchedulingError{Reason: "invalid job graph", Err: err}
	}
	depth, _ := g.Depth()
	if depth > maxRounds {
		return nil, &SchedulingError{Reason: fmt.Sprintf("graph needs %d rounds, limit is %d", depth, maxRounds)}
	}

	submitted := make(map[string]string, len(g.Jobs))
	for round := 0; len(submitted) < len(g.Jobs); round++ {
		if round >= maxRounds {
			return submitted, &SchedulingError{Reason: fmt.Sprintf("too many rounds while scheduling jobs (limit %d)", maxRounds), Submitted: len(submitted)}
		}

		var (
			names []string
			reqs  []batch.SubmitRequest
		)
		for _, job := range g.Jobs {
			if _, done := submitted[job.Name]; done {
				continue
			}
			deps, ready := parentIDs(job, submitted)
			if !ready {
				continue
			}
			names = append(names, job.Name)
			reqs = append(reqs, batch.NewSubmitRequest(job, deps))
		}
		if len(reqs) == 0 {
			return submitted, &SchedulingError{Reason: "no job became eligible", Submitted: len(submitted)}
		}

		ids, err := sub.SubmitRound(round, reqs)
		for i, id := range ids {
			if i < len(names) && id != "" {
				submitted[names[i]] = id
			}
		}
		if err != nil {
			return submitted, &SchedulingError{Reason: fmt.Sprintf("round %d submission", round), Submitted: len(submitted), Err: err}
		}
		if len(ids) != len(reqs) {
			return submitted, &SchedulingError{Reason: fmt.Sprintf("round %d returned %d ids for %d jobs", round, len(ids), len(reqs)), Submitted: len(submitted)}
		}
	}
	return submitted, nil
}

// parentIDs returns the external ids of job's parents, or false when a
// parent has not been submitted yet.
func parentIDs(job jobs.Job, submitted map[string]string) ([]string, bool) {
	deps := make([]string, 0, len(job.Parents))
	for _, p := range job.Parents {
		id, ok := submitted[p]
		if !ok {
			return nil, false
		}
		deps = append(deps, id)
	}
	return deps, true
}
