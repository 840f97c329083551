package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/apply-engine/internal/apply"
	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/retry"
)

// recordingApply captures the order of requests and returns scripted outcomes.
type recordingApply struct {
	mu       sync.Mutex
	requests []apply.Request
	outcomes map[string][]error // per job URL, consumed per attempt
}

func (f *recordingApply) fn(_ context.Context, req apply.Request) (*apply.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	if errs := f.outcomes[req.JobURL]; len(errs) > 0 {
		err := errs[0]
		f.outcomes[req.JobURL] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &apply.Result{ApplicationID: uuid.New(), Status: apply.StatusSubmitted}, nil
}

func newTestProcessor(cfg Config, fn apply.Func) *Processor {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Aggressive: true,
		MaxWait:    time.Second,
	})
	p := NewProcessor(cfg, limiter, nil, retry.DefaultPolicy(), fn)
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

func greenhouseURL(i int) string {
	return fmt.Sprintf("https://boards.greenhouse.io/acme/jobs/%d", i)
}

func TestProcessor_Process_AllSucceed(t *testing.T) {
	fake := &recordingApply{outcomes: map[string][]error{}}
	p := newTestProcessor(DefaultConfig(), fake.fn)

	jobs := []Job{
		{UserID: uuid.New(), JobURL: greenhouseURL(1)},
		{UserID: uuid.New(), JobURL: "https://jobs.lever.co/acme/a"},
		{UserID: uuid.New(), JobURL: "https://jobs.ashbyhq.com/acme/b"},
	}

	summary, err := p.Process(context.Background(), jobs)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Chunks)
	assert.Len(t, summary.Results, 3)
	for _, r := range summary.Results {
		assert.Equal(t, apply.StatusSubmitted, r.Status)
		assert.NotNil(t, r.ApplicationID)
		assert.Equal(t, 1, r.Attempts)
	}
}

func TestProcessor_Process_PriorityOrderWithinPlatform(t *testing.T) {
	fake := &recordingApply{outcomes: map[string][]error{}}
	p := newTestProcessor(DefaultConfig(), fake.fn)

	jobs := []Job{
		{JobURL: greenhouseURL(3), Priority: 90},
		{JobURL: greenhouseURL(1), Priority: 10},
		{JobURL: greenhouseURL(2), Priority: 50},
	}

	_, err := p.Process(context.Background(), jobs)
	require.NoError(t, err)

	require.Len(t, fake.requests, 3)
	assert.Equal(t, greenhouseURL(1), fake.requests[0].JobURL)
	assert.Equal(t, greenhouseURL(2), fake.requests[1].JobURL)
	assert.Equal(t, greenhouseURL(3), fake.requests[2].JobURL)
}

func TestProcessor_Process_Chunking(t *testing.T) {
	fake := &recordingApply{outcomes: map[string][]error{}}
	cfg := DefaultConfig()
	cfg.ChunkSize = 2
	p := newTestProcessor(cfg, fake.fn)

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = Job{JobURL: greenhouseURL(i)}
	}

	summary, err := p.Process(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Chunks)
	assert.Len(t, summary.Results, 5)
}

func TestProcessor_Process_TransientRetriesThenSucceeds(t *testing.T) {
	url := greenhouseURL(1)
	fake := &recordingApply{outcomes: map[string][]error{
		url: {errors.New("form element not found"), nil},
	}}
	p := newTestProcessor(DefaultConfig(), fake.fn)

	summary, err := p.Process(context.Background(), []Job{{JobURL: url}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, apply.StatusSubmitted, summary.Results[0].Status)
	assert.Equal(t, 2, summary.Results[0].Attempts)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestProcessor_Process_PermanentErrorStopsRetrying(t *testing.T) {
	url := greenhouseURL(1)
	fake := &recordingApply{outcomes: map[string][]error{
		url: {
			&apply.PermanentError{Message: "resume not uploaded"},
			nil, // would succeed if retried, must not be reached
		},
	}}
	p := newTestProcessor(DefaultConfig(), fake.fn)

	summary, err := p.Process(context.Background(), []Job{{JobURL: url}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, apply.StatusError, summary.Results[0].Status)
	assert.Equal(t, 1, summary.Results[0].Attempts)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, fake.requests, 1)
}

func TestProcessor_Process_ExhaustsAttempts(t *testing.T) {
	url := greenhouseURL(1)
	transient := errors.New("timeout waiting for selector")
	fake := &recordingApply{outcomes: map[string][]error{
		url: {transient, transient, transient},
	}}
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	p := newTestProcessor(cfg, fake.fn)

	summary, err := p.Process(context.Background(), []Job{{JobURL: url}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, apply.StatusError, summary.Results[0].Status)
	assert.Equal(t, 3, summary.Results[0].Attempts)
	assert.Len(t, fake.requests, 3)
}

func TestProcessor_Process_RateLimitedExhaustionMarked(t *testing.T) {
	url := greenhouseURL(1)
	rl := &apply.RateLimitError{Platform: "greenhouse", Message: "429 too many requests"}
	fake := &recordingApply{outcomes: map[string][]error{
		url: {rl, rl},
	}}
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	p := newTestProcessor(cfg, fake.fn)

	summary, err := p.Process(context.Background(), []Job{{JobURL: url}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, statusRateLimited, summary.Results[0].Status)
	assert.Equal(t, 1, summary.RateLimited)
}

func TestProcessor_Process_ConcurrencyBounded(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0

	fn := func(ctx context.Context, req apply.Request) (*apply.Result, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return &apply.Result{Status: apply.StatusSubmitted}, nil
	}

	cfg := DefaultConfig()
	cfg.MaxConcurrency = 2
	p := newTestProcessor(cfg, fn)

	// Four distinct platforms, one job each: four groups compete for two slots.
	jobs := []Job{
		{JobURL: greenhouseURL(1)},
		{JobURL: "https://jobs.lever.co/acme/a"},
		{JobURL: "https://jobs.ashbyhq.com/acme/b"},
		{JobURL: "https://www.indeed.com/viewjob?jk=abc"},
	}

	summary, err := p.Process(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Succeeded)
	assert.LessOrEqual(t, peak, 2)
}

func TestProcessor_Process_CancelledContext(t *testing.T) {
	fn := func(ctx context.Context, req apply.Request) (*apply.Result, error) {
		return &apply.Result{Status: apply.StatusSubmitted}, nil
	}
	p := newTestProcessor(DefaultConfig(), fn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.Process(ctx, []Job{{JobURL: greenhouseURL(1)}})
	assert.Error(t, err)
	assert.NotNil(t, summary)
}

func TestProcessor_WritesCheckpoints(t *testing.T) {
	dir := t.TempDir()
	fake := &recordingApply{outcomes: map[string][]error{}}
	cfg := DefaultConfig()
	cfg.ChunkSize = 1
	cfg.CheckpointDir = dir
	p := newTestProcessor(cfg, fake.fn)

	// Pin the clock so both chunks land in distinguishable files.
	base := time.Now()
	calls := 0
	p.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	_, err := p.Process(context.Background(), []Job{
		{JobURL: greenhouseURL(1)},
		{JobURL: greenhouseURL(2)},
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	latest, err := LoadLatestCheckpoint(dir)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Len(t, latest.Results, 2)
}

func TestLoadLatestCheckpoint(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		summary, err := LoadLatestCheckpoint(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, summary)
	})

	t.Run("missing directory", func(t *testing.T) {
		summary, err := LoadLatestCheckpoint(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.Nil(t, summary)
	})

	t.Run("corrupt checkpoint", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint_1.json"), []byte("{"), 0o644))
		_, err := LoadLatestCheckpoint(dir)
		assert.Error(t, err)
	})
}

func TestDetectGroupsByPlatform(t *testing.T) {
	fake := &recordingApply{outcomes: map[string][]error{}}
	p := newTestProcessor(DefaultConfig(), fake.fn)

	jobs := []Job{
		{JobURL: greenhouseURL(1)},
		{JobURL: greenhouseURL(2)},
		{JobURL: "https://jobs.lever.co/acme/a"},
	}

	summary, err := p.Process(context.Background(), jobs)
	require.NoError(t, err)

	byPlatform := map[platform.Platform]int{}
	for _, r := range summary.Results {
		byPlatform[r.Platform]++
	}
	assert.Equal(t, 2, byPlatform[platform.PlatformGreenhouse])
	assert.Equal(t, 1, byPlatform[platform.PlatformLever])
}
