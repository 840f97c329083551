// Package batch runs a one-shot set of applications with platform-grouped
// concurrency, rate limiting, and per-chunk checkpointing.
package batch

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/apply-engine/internal/apply"
	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/retry"
	"github.com/jonathan/apply-engine/internal/session"
)

const (
	defaultChunkSize      = 25
	defaultMaxConcurrency = 7
	defaultMaxAttempts    = 3
)

// Job is one application to run.
type Job struct {
	UserID   uuid.UUID       `json:"user_id"`
	JobURL   string          `json:"job_url"`
	Priority int             `json:"priority"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Options  apply.Options   `json:"options"`
}

// ItemResult is the terminal outcome of one job in the batch.
type ItemResult struct {
	JobURL        string            `json:"job_url"`
	Platform      platform.Platform `json:"platform"`
	Status        string            `json:"status"`
	ApplicationID *uuid.UUID        `json:"application_id,omitempty"`
	Error         string            `json:"error,omitempty"`
	Attempts      int               `json:"attempts"`
}

// Summary aggregates a batch run.
type Summary struct {
	Total       int          `json:"total"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	RateLimited int          `json:"rate_limited"`
	Chunks      int          `json:"chunks"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Results     []ItemResult `json:"results"`
}

// Config holds the batch processor's knobs.
type Config struct {
	ChunkSize      int    // jobs per chunk; a crash loses at most one chunk
	MaxConcurrency int    // platform groups running at once within a chunk
	MaxAttempts    int    // in-process attempts per job
	CheckpointDir  string // where checkpoint files are written; empty disables
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      defaultChunkSize,
		MaxConcurrency: defaultMaxConcurrency,
		MaxAttempts:    defaultMaxAttempts,
	}
}

// Processor executes batches. Jobs are sorted by priority, split into chunks,
// and grouped by platform within each chunk. Groups run concurrently under a
// global limit; jobs within a group run sequentially so each platform sees
// human-like pacing on one browser session.
type Processor struct {
	cfg     Config
	limiter *ratelimit.Limiter
	pool    *session.Pool
	policy  *retry.Policy
	applyFn apply.Func

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a batch processor.
func NewProcessor(cfg Config, limiter *ratelimit.Limiter, pool *session.Pool,
	policy *retry.Policy, applyFn apply.Func) *Processor {

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	return &Processor{
		cfg:     cfg,
		limiter: limiter,
		pool:    pool,
		policy:  policy,
		applyFn: applyFn,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Process runs all jobs and returns the summary. Processing continues through
// individual failures; only context cancellation aborts the run early, and
// the partial summary is still returned alongside the error.
func (b *Processor) Process(ctx context.Context, jobs []Job) (*Summary, error) {
	summary := &Summary{
		Total:     len(jobs),
		StartedAt: b.now(),
		Results:   make([]ItemResult, 0, len(jobs)),
	}

	sorted := make([]Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	var runErr error
	for start := 0; start < len(sorted); start += b.cfg.ChunkSize {
		end := start + b.cfg.ChunkSize
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[start:end]
		summary.Chunks++

		log.Printf("[Batch] processing chunk %d (%d jobs)", summary.Chunks, len(chunk))
		results, err := b.processChunk(ctx, chunk)
		summary.Results = append(summary.Results, results...)

		if cpErr := b.writeCheckpoint(summary); cpErr != nil {
			log.Printf("[Batch] failed to write checkpoint: %v", cpErr)
		}
		if err != nil {
			runErr = err
			break
		}
	}

	for _, r := range summary.Results {
		switch {
		case r.Status == apply.StatusSubmitted || r.Status == apply.StatusPendingReview ||
			r.Status == apply.StatusExternal:
			summary.Succeeded++
		case r.Status == statusRateLimited:
			summary.RateLimited++
		default:
			summary.Failed++
		}
	}
	summary.FinishedAt = b.now()
	return summary, runErr
}

// statusRateLimited marks items abandoned because the platform throttled us.
const statusRateLimited = "rate_limited"

// processChunk groups a chunk by platform and runs the groups concurrently.
func (b *Processor) processChunk(ctx context.Context, chunk []Job) ([]ItemResult, error) {
	groups := make(map[platform.Platform][]Job)
	order := []platform.Platform{}
	for _, job := range chunk {
		p := platform.Detect(job.JobURL)
		if _, seen := groups[p]; !seen {
			order = append(order, p)
		}
		groups[p] = append(groups[p], job)
	}

	var mu sync.Mutex
	results := make([]ItemResult, 0, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxConcurrency)
	for _, p := range order {
		p := p
		jobs := groups[p]
		g.Go(func() error {
			for _, job := range jobs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				result := b.processJob(gctx, p, job)
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// processJob runs one job with in-process retries. The retry budget here is
// independent of the persistent queue's attempt counter: a batch run owns its
// jobs start to finish.
func (b *Processor) processJob(ctx context.Context, p platform.Platform, job Job) ItemResult {
	result := ItemResult{JobURL: job.JobURL, Platform: p}

	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		allowed, err := b.limiter.Acquire(ctx, p)
		if err != nil {
			result.Status = apply.StatusError
			result.Error = err.Error()
			return result
		}
		if !allowed {
			result.Status = statusRateLimited
			result.Error = "rate limiter denied the attempt"
			return result
		}

		res, err := b.applyFn(ctx, apply.Request{
			UserID:   job.UserID,
			JobURL:   job.JobURL,
			Platform: p,
			Payload:  job.Payload,
			Options:  job.Options,
		})
		if err == nil {
			b.limiter.RecordSuccess(p)
			b.releaseSession(ctx, p, true)
			result.Status = res.Status
			if res.ApplicationID != uuid.Nil {
				id := res.ApplicationID
				result.ApplicationID = &id
			}
			return result
		}

		rateLimited := apply.IsRateLimited(err)
		if rateLimited {
			b.limiter.RecordFailure(p, err.Error())
		}
		b.releaseSession(ctx, p, false)

		if apply.IsPermanent(err) {
			result.Status = apply.StatusError
			result.Error = err.Error()
			return result
		}
		if attempt == b.cfg.MaxAttempts {
			if rateLimited {
				result.Status = statusRateLimited
			} else {
				result.Status = apply.StatusError
			}
			result.Error = err.Error()
			return result
		}

		delay := b.policy.NextDelay(attempt, rateLimited)
		log.Printf("[Batch] %s attempt %d failed, retrying in %s: %v", job.JobURL, attempt, delay, err)
		if serr := b.sleep(ctx, delay); serr != nil {
			result.Status = apply.StatusError
			result.Error = serr.Error()
			return result
		}
	}
	return result
}

func (b *Processor) releaseSession(ctx context.Context, p platform.Platform, success bool) {
	if b.pool != nil {
		b.pool.Release(ctx, p, success)
	}
}
