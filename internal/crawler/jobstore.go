package crawler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("job not found")

// JobStore keeps crawl jobs in memory. Jobs are operational state, not
// knowledge; losing them on restart only loses progress reporting.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]Job
	cancels map[string]context.CancelFunc
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create stores a new pending job along with its cancel hook.
func (s *JobStore) Create(job Job, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// UpdateStatus transitions a job and stamps start/finish times. Transitions
// out of a terminal status are ignored so a late worker error cannot
// overwrite a cancellation.
func (s *JobStore) UpdateStatus(jobID string, status JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = status
	job.ErrorText = errText
	now := time.Now().UTC()
	if status == JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.IsTerminal() {
		job.Finished = &now
		delete(s.cancels, jobID)
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateCounters replaces a job's progress counters.
func (s *JobStore) UpdateCounters(jobID string, counters Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Counters = counters
	s.jobs[jobID] = job
	return nil
}

// Cancel requests cancellation of a running or pending job. Cancelling a
// terminal job is a no-op and reports false.
func (s *JobStore) Cancel(jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
	}
	return true, nil
}
