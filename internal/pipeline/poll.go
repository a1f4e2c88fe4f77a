package pipeline

import (
	"fmt"
	"time"

	"github.com/fossabot/gfw-data-api/internal/batch"
)

// Tracker holds the pending, completed and failed sets of one pipeline.
// It is plain data so it can cross a continue-as-new boundary. Iteration
// always follows IDs, never the maps.
type Tracker struct {
	IDs       []string          `json:"ids"`
	Names     map[string]string `json:"names"`
	Completed map[string]bool   `json:"completed"`
	Failed    map[string]bool   `json:"failed"`
}

// NewTracker tracks ids, all pending. names maps job id to job name.
func NewTracker(ids []string, names map[string]string) *Tracker {
	t := &Tracker{
		IDs:       append([]string(nil), ids...),
		Names:     make(map[string]string, len(ids)),
		Completed: make(map[string]bool),
		Failed:    make(map[string]bool),
	}
	for _, id := range ids {
		t.Names[id] = names[id]
	}
	return t
}

// Pending returns the ids that have not reached a terminal state, in order.
func (t *Tracker) Pending() []string {
	var out []string
	for _, id := range t.IDs {
		if !t.Completed[id] && !t.Failed[id] {
			out = append(out, id)
		}
	}
	return out
}

// Outcome reports the state the tracker has resolved to.
func (t *Tracker) Outcome() Outcome {
	if len(t.Failed) > 0 {
		return OutcomeFailed
	}
	if len(t.Completed) == len(t.IDs) {
		return OutcomeSuccess
	}
	return OutcomePending
}

// Observe applies one describe response. It returns an event for every job
// seen in a terminal state for the first time, followed by one aggregate
// event once the pipeline resolves. Re-observing a terminal job emits
// nothing. Jobs still queued or running, and unknown ids, are ignored.
func (t *Tracker) Observe(details []batch.JobDetail, now time.Time) ([]Event, Outcome) {
	if t.Completed == nil {
		t.Completed = make(map[string]bool)
	}
	if t.Failed == nil {
		t.Failed = make(map[string]bool)
	}
	var events []Event
	for _, d := range details {
		if _, known := t.Names[d.JobID]; !known {
			continue
		}
		if t.Completed[d.JobID] || t.Failed[d.JobID] {
			continue
		}
		name := t.Names[d.JobID]
		if name == "" {
			name = d.JobName
		}

		switch d.Status {
		case batch.StatusCompleted:
			t.Completed[d.JobID] = true
			events = append(events, Event{
				TaskID:   d.JobID,
				JobName:  name,
				Status:   StatusSuccess,
				Message:  fmt.Sprintf(msgJobCompleted, name),
				DateTime: now,
			})
		case batch.StatusFailed:
			t.Failed[d.JobID] = true
			events = append(events, Event{
				TaskID:   d.JobID,
				JobName:  name,
				Status:   StatusFailed,
				Message:  fmt.Sprintf(msgJobFailed, name),
				Detail:   d.StatusReason,
				DateTime: now,
			})
		}
	}

	outcome := t.Outcome()
	switch outcome {
	case OutcomeSuccess:
		events = append(events, Event{Status: StatusSuccess, Message: msgAllCompleted, DateTime: now})
	case OutcomeFailed:
		events = append(events, Event{Status: StatusFailed, Message: msgJobsFailed, DateTime: now})
	}
	return events, outcome
}

// Poll describes the pending jobs of t until they all complete or one
// fails, emitting events through rt and sleeping interval between cycles.
// A failure returns at once; jobs still pending are not cancelled.
// With maxCycles > 0 Poll gives up after that many cycles and returns
// OutcomePending so the caller can resume with the same tracker.
func Poll(rt Runtime, t *Tracker, interval time.Duration, maxCycles int) (Outcome, error) {
	if outcome := t.Outcome(); outcome != OutcomePending {
		return outcome, nil
	}

	for cycle := 0; maxCycles <= 0 || cycle < maxCycles; cycle++ {
		details, err := rt.Describe(t.Pending())
		if err != nil {
			return OutcomePending, err
		}

		events, outcome := t.Observe(details, rt.Now())
		for _, ev := range events {
			if err := rt.Emit(ev); err != nil {
				return OutcomePending, err
			}
		}
		if outcome != OutcomePending {
			return outcome, nil
		}

		if err := rt.Sleep(interval); err != nil {
			return OutcomePending, err
		}
	}
	return OutcomePending, nil
}
