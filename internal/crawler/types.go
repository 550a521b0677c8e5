// Package crawler runs bounded same-origin crawls that feed the indexer.
package crawler

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values held in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobRequest captures the per-job knobs a client may set. Zero values fall
// back to configured defaults.
type JobRequest struct {
	SeedURL   string `json:"seed_url"`
	Namespace string `json:"namespace"`
	MaxPages  int    `json:"max_pages"`
	MaxDepth  int    `json:"max_depth"`
}

// Job is the metadata kept for each submitted crawl.
type Job struct {
	ID        string     `json:"id"`
	SeedURL   string     `json:"seed_url"`
	Namespace string     `json:"namespace"`
	MaxPages  int        `json:"max_pages"`
	MaxDepth  int        `json:"max_depth"`
	Status    JobStatus  `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Counters  Counters   `json:"counters"`
}

// Counters tracks per-job progress. PagesCrawled counts every fetched page,
// including ones the quality filter rejected.
type Counters struct {
	PagesCrawled  int `json:"pages_crawled"`
	PagesSkipped  int `json:"pages_skipped"`
	PagesFailed   int `json:"pages_failed"`
	ChunksIndexed int `json:"chunks_indexed"`
}

// FetchResponse is what a Fetcher hands back for one page.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}

// frontierEntry is one URL queued for fetching within a job. Entries live
// only as long as the job that discovered them.
type frontierEntry struct {
	url   string
	depth int
	from  string // page the URL was discovered on, empty for the seed
}
