package pipeline

import (
	"fmt"
	"time"

	"github.com/fossabot/gfw-data-api/internal/batch"
	"github.com/fossabot/gfw-data-api/internal/jobs"
)

// Runtime is what a pipeline needs from its execution engine. Every method
// may block; implementations yield to other pipelines while they do.
type Runtime interface {
	Submitter
	Describe(jobIDs []string) ([]batch.JobDetail, error)
	Emit(ev Event) error
	Sleep(d time.Duration) error
	Now() time.Time
}

// RoundMargin is added to the deepest possible graph when deriving a round cap.
const RoundMargin = 8

// RoundCap returns the round cap for graphs built with chunkSize: the
// configured cap, raised when the builder can emit a deeper graph.
func RoundCap(configured, chunkSize int) int {
	return max(configured, jobs.MaxDepth(chunkSize, jobs.MaxPartitions)+RoundMargin)
}

// Options bound one pipeline run.
type Options struct {
	MaxRounds     int
	PollInterval  time.Duration
	MaxPollCycles int
}

// Start schedules g, recording a pending task event for every accepted
// job, and returns the tracker for polling. A scheduling failure is
// recorded as a failed pipeline event before it is returned.
func Start(rt Runtime, g *jobs.Graph, maxRounds int) (*Tracker, error) {
	ids, err := Schedule(g, maxRounds, recordingSubmitter{rt: rt})
	if err != nil {
		if emitErr := rt.Emit(Event{
			Status:   StatusFailed,
			Message:  msgScheduleFailed,
			Detail:   err.Error(),
			DateTime: rt.Now(),
		}); emitErr != nil {
			return nil, fmt.Errorf("%w (recording failure: %v)", err, emitErr)
		}
		return nil, err
	}

	order := make([]string, 0, len(ids))
	names := make(map[string]string, len(ids))
	for _, job := range g.Jobs {
		id := ids[job.Name]
		order = append(order, id)
		names[id] = job.Name
	}

	if err := rt.Emit(Event{Status: StatusPending, Message: msgScheduledAll, DateTime: rt.Now()}); err != nil {
		return nil, err
	}
	return NewTracker(order, names), nil
}

// Run schedules g and polls it to resolution.
func Run(rt Runtime, g *jobs.Graph, opts Options) (Outcome, error) {
	tracker, err := Start(rt, g, opts.MaxRounds)
	if err != nil {
		return OutcomeFailed, err
	}
	return Poll(rt, tracker, opts.PollInterval, opts.MaxPollCycles)
}

// recordingSubmitter emits the task creation event of every job the
// service accepted, including those of a partially failed round.
type recordingSubmitter struct {
	rt Runtime
}

func (s recordingSubmitter) SubmitRound(round int, reqs []batch.SubmitRequest) ([]string, error) {
	ids, err := s.rt.SubmitRound(round, reqs)
	for i, id := range ids {
		if id == "" || i >= len(reqs) {
			continue
		}
		if emitErr := s.rt.Emit(Event{
			TaskID:   id,
			JobName:  reqs[i].Name,
			Status:   StatusPending,
			Message:  fmt.Sprintf(msgScheduledJob, reqs[i].Name),
			DateTime: s.rt.Now(),
		}); emitErr != nil && err == nil {
			err = emitErr
		}
	}
	return ids, err
}
