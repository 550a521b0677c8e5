package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai"
	"github.com/schoolchat/knowledge-engine/internal/extract"
	"github.com/schoolchat/knowledge-engine/internal/index"
	"github.com/schoolchat/knowledge-engine/internal/metrics"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
)

// Config tunes crawl behavior. Zero values fall back to defaults.
type Config struct {
	Concurrency     int
	DefaultMaxPages int
	DefaultMaxDepth int
	Budget          time.Duration
	RequestDelay    time.Duration
	Quality         extract.QualityConfig
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.DefaultMaxPages <= 0 {
		c.DefaultMaxPages = 100
	}
	if c.DefaultMaxDepth <= 0 {
		c.DefaultMaxDepth = 3
	}
	if c.Budget <= 0 {
		c.Budget = 5 * time.Minute
	}
	if c.RequestDelay <= 0 {
		c.RequestDelay = time.Second
	}
}

// Service accepts crawl jobs and runs them on a shared worker pool. Pages
// from one seed stay on the seed's origin; every admitted page flows through
// the indexer under one generation stamp.
type Service struct {
	cfg     Config
	fetcher Fetcher
	indexer *index.Indexer
	jobs    *JobStore
	pool    *ants.Pool
	logger  *zap.Logger

	baseCtx context.Context
}

// NewService wires a crawl service. baseCtx bounds every job's lifetime;
// shutting it down cancels all running crawls.
func NewService(baseCtx context.Context, cfg Config, fetcher Fetcher, indexer *index.Indexer, jobs *JobStore, logger *zap.Logger) (*Service, error) {
	cfg.applyDefaults()
	pool, err := ants.NewPool(cfg.Concurrency, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create crawl pool: %w", err)
	}
	return &Service{
		cfg:     cfg,
		fetcher: fetcher,
		indexer: indexer,
		jobs:    jobs,
		pool:    pool,
		logger:  logger.Named("crawler"),
		baseCtx: baseCtx,
	}, nil
}

// Close releases the worker pool. Running jobs stop when baseCtx is
// cancelled by the caller.
func (s *Service) Close() {
	s.pool.Release()
}

// Jobs exposes the job store for status lookups and cancellation.
func (s *Service) Jobs() *JobStore { return s.jobs }

// Submit validates a request, registers a pending job, and starts crawling
// in the background.
func (s *Service) Submit(req JobRequest) (Job, error) {
	seed, err := normalizeSeed(req.SeedURL)
	if err != nil {
		return Job{}, err
	}
	if req.Namespace == "" {
		return Job{}, errors.New("namespace is required")
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.cfg.DefaultMaxPages
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = s.cfg.DefaultMaxDepth
	}

	job := Job{
		ID:        uuid.NewString(),
		SeedURL:   seed,
		Namespace: req.Namespace,
		MaxPages:  maxPages,
		MaxDepth:  maxDepth,
		Status:    JobStatusPending,
		Submitted: time.Now().UTC(),
	}

	jobCtx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Budget)
	var userCancelled atomic.Bool
	cancelHook := func() {
		userCancelled.Store(true)
		cancel()
	}
	if err := s.jobs.Create(job, cancelHook); err != nil {
		cancel()
		return Job{}, err
	}

	go func() {
		defer cancel()
		s.run(jobCtx, job, &userCancelled)
	}()
	return job, nil
}

// run executes the BFS crawl for one job.
func (s *Service) run(ctx context.Context, job Job, userCancelled *atomic.Bool) {
	logger := s.logger.With(zap.String("job_id", job.ID), zap.String("seed_url", job.SeedURL))
	_ = s.jobs.UpdateStatus(job.ID, JobStatusRunning, "")
	logger.Info("crawl started",
		zap.String("namespace", job.Namespace),
		zap.Int("max_pages", job.MaxPages),
		zap.Int("max_depth", job.MaxDepth),
	)

	var (
		tracker    visitTracker
		limiter    = newHostLimiter(s.cfg.RequestDelay)
		quality    = extract.NewQualityFilter(s.cfg.Quality)
		retries    = newRetryPolicy()
		generation = index.NewGeneration()

		mu       sync.Mutex
		counters Counters
		fatalErr error
	)

	frontier := []frontierEntry{{url: job.SeedURL, depth: 0}}
	tracker.MarkIfNew(job.SeedURL)
	processed := 0

	for len(frontier) > 0 && processed < job.MaxPages && ctx.Err() == nil && fatalErr == nil {
		batch := frontier
		if remaining := job.MaxPages - processed; len(batch) > remaining {
			batch = batch[:remaining]
			frontier = frontier[remaining:]
		} else {
			frontier = nil
		}
		processed += len(batch)

		var (
			wg   sync.WaitGroup
			next []frontierEntry
		)
		for _, entry := range batch {
			entry := entry
			wg.Add(1)
			err := s.pool.Submit(func() {
				defer wg.Done()
				metrics.IncActiveWorkers()
				defer metrics.DecActiveWorkers()

				links, chunks, outcome, err := s.crawlPage(ctx, job, entry, limiter, quality, retries, generation)
				metrics.ObserveCrawlPage(entry.url, string(outcome))

				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case outcomeIndexed:
					counters.PagesCrawled++
					counters.ChunksIndexed += chunks
				case outcomeSkipped:
					// Rejected pages still consume the page budget.
					counters.PagesCrawled++
					counters.PagesSkipped++
				case outcomeError:
					counters.PagesFailed++
				}
				if err != nil && isFatal(err) && fatalErr == nil {
					fatalErr = err
				}
				if entry.depth < job.MaxDepth {
					for _, link := range links {
						if tracker.MarkIfNew(link) && quality.AllowURL(link) {
							next = append(next, frontierEntry{url: link, depth: entry.depth + 1, from: entry.url})
						}
					}
				}
			})
			if err != nil {
				wg.Done()
				mu.Lock()
				counters.PagesFailed++
				mu.Unlock()
				logger.Warn("pool submit failed", zap.Error(err))
			}
		}
		wg.Wait()
		frontier = append(frontier, next...)
		_ = s.jobs.UpdateCounters(job.ID, counters)
	}

	_ = s.jobs.UpdateCounters(job.ID, counters)
	switch {
	case fatalErr != nil:
		_ = s.jobs.UpdateStatus(job.ID, JobStatusFailed, fatalErr.Error())
		metrics.ObserveJob(string(JobStatusFailed))
		logger.Error("crawl failed", zap.Error(fatalErr))
	case userCancelled.Load():
		_ = s.jobs.UpdateStatus(job.ID, JobStatusCancelled, "")
		metrics.ObserveJob(string(JobStatusCancelled))
		logger.Info("crawl cancelled", zap.Int("pages_crawled", counters.PagesCrawled))
	default:
		// Budget exhaustion ends the crawl normally; whatever was indexed
		// stays available.
		_ = s.jobs.UpdateStatus(job.ID, JobStatusCompleted, "")
		metrics.ObserveJob(string(JobStatusCompleted))
		logger.Info("crawl completed",
			zap.Int("pages_crawled", counters.PagesCrawled),
			zap.Int("pages_skipped", counters.PagesSkipped),
			zap.Int("pages_failed", counters.PagesFailed),
			zap.Int("chunks_indexed", counters.ChunksIndexed),
		)
	}
}

type pageOutcome string

const (
	outcomeIndexed pageOutcome = "indexed"
	outcomeSkipped pageOutcome = "skipped"
	outcomeError   pageOutcome = "error"
)

// crawlPage fetches, filters, and indexes a single page, returning the
// same-origin links it discovered.
func (s *Service) crawlPage(
	ctx context.Context,
	job Job,
	entry frontierEntry,
	limiter *hostLimiter,
	quality *extract.QualityFilter,
	retries *retryPolicy,
	generation int64,
) ([]string, int, pageOutcome, error) {
	host := hostOf(entry.url)
	if err := limiter.Wait(ctx, host); err != nil {
		return nil, 0, outcomeSkipped, nil
	}

	var (
		resp FetchResponse
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = s.fetcher.Fetch(ctx, entry.url)
		if err == nil || !retries.shouldRetry(err, attempt+1) {
			break
		}
		pause(ctx, retries.backoff(attempt))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, outcomeSkipped, nil
		}
		s.logger.Warn("fetch failed",
			zap.String("url", entry.url),
			zap.String("discovered_from", entry.from),
			zap.Error(err),
		)
		return nil, 0, outcomeError, err
	}
	if resp.StatusCode >= 400 {
		return nil, 0, outcomeError, nil
	}
	if ct := resp.ContentType; ct != "" && !strings.Contains(ct, "text/html") {
		return nil, 0, outcomeSkipped, nil
	}

	page, err := extract.Parse(string(resp.Body), entry.url)
	if err != nil {
		return nil, 0, outcomeError, nil
	}

	links := make([]string, 0, len(page.Links))
	for _, link := range page.Links {
		if extract.SameOrigin(job.SeedURL, link) {
			links = append(links, link)
		}
	}

	if verdict := quality.Check(page.Text); verdict != extract.VerdictOK {
		s.logger.Debug("page rejected",
			zap.String("url", entry.url),
			zap.String("verdict", string(verdict)),
		)
		return links, 0, outcomeSkipped, nil
	}

	chunks, err := s.indexer.IndexPage(ctx, job.Namespace, page.URL, page.Title, page.Text, generation)
	if err != nil {
		if ctx.Err() != nil {
			return links, 0, outcomeSkipped, nil
		}
		s.logger.Warn("index failed", zap.String("url", entry.url), zap.Error(err))
		return links, 0, outcomeError, err
	}
	return links, chunks, outcomeIndexed, nil
}

// isFatal reports errors that should fail the whole job rather than one page.
func isFatal(err error) bool {
	return errors.Is(err, vectorstore.ErrUnavailable) || errors.Is(err, ai.ErrProvider)
}

func normalizeSeed(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("seed_url is required")
	}
	normalized, err := extract.NormalizeURL(raw)
	if err != nil {
		return "", fmt.Errorf("invalid seed_url: %w", err)
	}
	u, err := url.Parse(normalized)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("seed_url must be an absolute http or https URL")
	}
	return normalized, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Hostname()
}
