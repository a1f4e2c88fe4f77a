package batch

import (
	"context"
	"fmt"
	"sync"
)

// Submission records one accepted Submit call on a FakeRunner.
type Submission struct {
	JobID   string
	Request SubmitRequest
}

// FakeRunner is an in-memory Runner. Jobs start queued and stay there until
// a test sets their status, or until they have been described CompleteAfter
// times when CompleteAfter is positive.
type FakeRunner struct {
	// CompleteAfter completes a job after this many describes. Zero disables it.
	CompleteAfter int
	// FailJobs fails the named jobs with the given reason instead of completing them.
	FailJobs map[string]string
	// SubmitErrors rejects submissions of the named jobs.
	SubmitErrors map[string]error
	// DescribeFailures makes the next n Describe calls fail.
	DescribeFailures int

	mu          sync.Mutex
	seq         int
	submissions []Submission
	jobs        map[string]*fakeJob
}

type fakeJob struct {
	detail    JobDetail
	described int
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{jobs: make(map[string]*fakeJob)}
}

func (f *FakeRunner) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.SubmitErrors[req.Name]; ok {
		return "", NewSubmissionError(req.Name, err, false)
	}
	for _, dep := range req.DependsOn {
		if _, ok := f.jobs[dep]; !ok {
			return "", NewSubmissionError(req.Name, fmt.Errorf("unknown dependency %s", dep), false)
		}
	}
	if f.jobs == nil {
		f.jobs = make(map[string]*fakeJob)
	}

	f.seq++
	id := fmt.Sprintf("job-%04d", f.seq)
	f.jobs[id] = &fakeJob{detail: JobDetail{JobID: id, JobName: req.Name, Status: StatusQueued}}
	f.submissions = append(f.submissions, Submission{JobID: id, Request: req})
	return id, nil
}

func (f *FakeRunner) Describe(ctx context.Context, jobIDs []string) ([]JobDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DescribeFailures > 0 {
		f.DescribeFailures--
		return nil, &DescribeError{Err: fmt.Errorf("service unavailable")}
	}

	details := make([]JobDetail, 0, len(jobIDs))
	for _, id := range jobIDs {
		j, ok := f.jobs[id]
		if !ok {
			continue
		}
		j.described++
		if f.CompleteAfter > 0 && !j.detail.Status.Terminal() && j.described >= f.CompleteAfter {
			if reason, fail := f.FailJobs[j.detail.JobName]; fail {
				j.detail.Status, j.detail.StatusReason = StatusFailed, reason
			} else {
				j.detail.Status = StatusCompleted
			}
		}
		details = append(details, j.detail)
	}
	return details, nil
}

// SetStatus overrides the reported status of a submitted job id.
func (f *FakeRunner) SetStatus(jobID string, status Status, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		j.detail.Status = status
		j.detail.StatusReason = reason
	}
}

// SetStatusByName overrides the status of the job submitted under name.
func (f *FakeRunner) SetStatusByName(name string, status Status, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.detail.JobName == name {
			j.detail.Status = status
			j.detail.StatusReason = reason
		}
	}
}

// Submissions returns the accepted submissions in call order.
func (f *FakeRunner) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

// JobID returns the id the named job was submitted under.
func (f *FakeRunner) JobID(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.submissions {
		if s.Request.Name == name {
			return s.JobID, true
		}
	}
	return "", false
}
