// Package worker drains the persistent queue: it claims items one at a time,
// runs the application attempt, and resolves each outcome back into queue and
// campaign state.
package worker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/apply-engine/internal/apply"
	"github.com/jonathan/apply-engine/internal/db"
	"github.com/jonathan/apply-engine/internal/notify"
	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/ratelimit"
	"github.com/jonathan/apply-engine/internal/retry"
	"github.com/jonathan/apply-engine/internal/session"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultLockLease    = 10 * time.Minute
	// cooldownBase is how long a (user, platform) pair rests after the
	// platform throttles us. Jitter spreads the comeback.
	cooldownBase      = 30 * time.Minute
	cooldownJitterMax = 90 * time.Second
)

// Store is the persistence surface the worker drives. *db.DB implements it;
// tests substitute an in-memory fake.
type Store interface {
	ClaimNext(ctx context.Context, workerID string) (*db.QueueItem, error)
	CompleteItem(ctx context.Context, id uuid.UUID, applicationID *uuid.UUID, status db.ItemStatus, attempts int, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextRunAt time.Time, lastError string) error
	ReleaseLock(ctx context.Context, id uuid.UUID, workerID string) error
	ReclaimExpiredLocks(ctx context.Context, lease time.Duration) (int, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	SetCampaignStatus(ctx context.Context, id uuid.UUID, status db.CampaignStatus, lastError string) error
	GetQueueCounts(ctx context.Context, campaignID *uuid.UUID) (db.QueueCounts, error)
}

// Config holds the worker's knobs.
type Config struct {
	WorkerID     string        // stable identity stamped into locked_by
	PollInterval time.Duration // sleep when the queue is empty
	LockLease    time.Duration // age after which another worker's lock is orphaned
	HumanDelay   bool          // insert human-like pacing before each attempt
}

// DefaultConfig returns worker defaults with a host+pid derived identity.
func DefaultConfig() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	return Config{
		WorkerID:     fmt.Sprintf("%s_%d", host, os.Getpid()),
		PollInterval: defaultPollInterval,
		LockLease:    defaultLockLease,
		HumanDelay:   true,
	}
}

// Stats counts what the worker has done since start.
type Stats struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Cooldowns int `json:"cooldowns"`
}

type cooldownKey struct {
	userID   uuid.UUID
	platform platform.Platform
}

// Worker runs the claim-execute-resolve loop.
type Worker struct {
	cfg     Config
	store   Store
	limiter *ratelimit.Limiter
	pool    *session.Pool
	policy  *retry.Policy
	applyFn apply.Func
	sink    notify.Sink

	mu        sync.Mutex
	cooldowns map[cooldownKey]time.Time
	stats     Stats

	cancel context.CancelFunc
	done   chan struct{}

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// New creates a worker. policy may be nil for the default; sink may be nil to
// disable notifications.
func New(cfg Config, store Store, limiter *ratelimit.Limiter, pool *session.Pool,
	policy *retry.Policy, applyFn apply.Func, sink notify.Sink) *Worker {

	if cfg.WorkerID == "" {
		cfg.WorkerID = DefaultConfig().WorkerID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = defaultLockLease
	}
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	return &Worker{
		cfg:       cfg,
		store:     store,
		limiter:   limiter,
		pool:      pool,
		policy:    policy,
		applyFn:   applyFn,
		sink:      sink,
		cooldowns: make(map[cooldownKey]time.Time),
		now:       time.Now,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
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

// Start launches the worker loop. Stop or context cancellation ends it.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	log.Printf("[Worker] %s starting (poll=%s lease=%s)", w.cfg.WorkerID, w.cfg.PollInterval, w.cfg.LockLease)
	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
}

// Stop signals the loop and waits for the in-flight item to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
	log.Printf("[Worker] %s stopped", w.cfg.WorkerID)
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := w.RunOnce(ctx)
		if err != nil {
			log.Printf("[Worker] loop error: %v", err)
		}
		if !worked {
			if w.sleep(ctx, w.cfg.PollInterval) != nil {
				return
			}
		}
	}
}

// RunOnce reclaims orphaned locks, then claims and processes at most one
// item. Returns whether an item was processed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if n, err := w.store.ReclaimExpiredLocks(ctx, w.cfg.LockLease); err != nil {
		log.Printf("[Worker] failed to reclaim expired locks: %v", err)
	} else if n > 0 {
		log.Printf("[Worker] reclaimed %d orphaned items", n)
	}

	item, err := w.store.ClaimNext(ctx, w.cfg.WorkerID)
	if err != nil {
		return false, fmt.Errorf("failed to claim next item: %w", err)
	}
	if item == nil {
		return false, nil
	}

	w.mu.Lock()
	w.stats.Claimed++
	w.mu.Unlock()

	w.processItem(ctx, item)
	return true, nil
}

// processItem runs one claimed item through cooldown, pacing, rate limiting,
// the apply function, and outcome resolution. The item always leaves this
// method unlocked: resolved, rescheduled, or released.
func (w *Worker) processItem(ctx context.Context, item *db.QueueItem) {
	p := w.resolvePlatform(item)

	// A platform in cooldown reschedules the item without consuming an
	// attempt. The worker never hammers a platform that just throttled us.
	if until, active := w.cooldownUntil(item.UserID, p); active {
		log.Printf("[Worker] %s in cooldown for user %s until %s, rescheduling item %s",
			p, item.UserID, until.Format(time.RFC3339), item.ID)
		w.mu.Lock()
		w.stats.Cooldowns++
		w.mu.Unlock()
		if err := w.store.ScheduleRetry(ctx, item.ID, item.Attempts, until, "platform cooldown active"); err != nil {
			log.Printf("[Worker] failed to reschedule cooled-down item: %v", err)
		}
		return
	}

	opts, campaignOK := w.loadOptions(ctx, item)
	if !campaignOK {
		// Campaign stopped between claim and execution; hand the item back.
		if err := w.store.ReleaseLock(ctx, item.ID, w.cfg.WorkerID); err != nil {
			log.Printf("[Worker] failed to release lock: %v", err)
		}
		return
	}

	if w.cfg.HumanDelay {
		if err := w.humanDelay(ctx, p); err != nil {
			w.release(ctx, item)
			return
		}
	}

	allowed, err := w.limiter.Acquire(ctx, p)
	if err != nil {
		w.release(ctx, item)
		return
	}
	if !allowed {
		// Breaker open or daily cap hit. Push the item out without
		// consuming an attempt; the condition is platform-wide, not the
		// item's fault.
		delay := w.policy.NextDelay(1, true)
		if err := w.store.ScheduleRetry(ctx, item.ID, item.Attempts, w.now().Add(delay), "rate limiter denied attempt"); err != nil {
			log.Printf("[Worker] failed to reschedule rate-denied item: %v", err)
		}
		return
	}

	result, applyErr := w.applyFn(ctx, apply.Request{
		UserID:   item.UserID,
		JobURL:   item.JobURL,
		Platform: p,
		Payload:  item.Payload,
		Options:  opts,
	})

	if applyErr == nil {
		w.resolveSuccess(ctx, item, p, result)
		return
	}
	w.resolveFailure(ctx, item, p, applyErr)
}

// resolvePlatform prefers the stored platform and falls back to URL detection.
func (w *Worker) resolvePlatform(item *db.QueueItem) platform.Platform {
	if item.Platform != nil && *item.Platform != "" {
		return platform.Platform(*item.Platform)
	}
	return platform.Detect(item.JobURL)
}

// loadOptions resolves campaign config into apply options. The second return
// is false when the item's campaign is no longer running.
func (w *Worker) loadOptions(ctx context.Context, item *db.QueueItem) (apply.Options, bool) {
	opts := apply.DefaultOptions()
	opts.QueueItemID = item.ID.String()
	if item.CampaignID == nil {
		return opts, true
	}

	campaign, err := w.store.GetCampaign(ctx, *item.CampaignID)
	if err != nil {
		log.Printf("[Worker] failed to load campaign %s: %v", *item.CampaignID, err)
		return opts, true
	}
	if campaign == nil || campaign.Status != db.CampaignRunning {
		return opts, false
	}

	opts = apply.ParseOptions(campaign.Config)
	opts.CampaignID = campaign.ID.String()
	opts.QueueItemID = item.ID.String()
	return opts, true
}

// humanDelay sleeps a random duration inside the platform's pacing window.
func (w *Worker) humanDelay(ctx context.Context, p platform.Platform) error {
	prof := platform.Profile(p)
	spread := prof.DelayMax - prof.DelayMin
	delay := prof.DelayMin + time.Duration(w.randFloat()*float64(spread))
	return w.sleep(ctx, delay)
}

func (w *Worker) release(ctx context.Context, item *db.QueueItem) {
	if err := w.store.ReleaseLock(ctx, item.ID, w.cfg.WorkerID); err != nil {
		log.Printf("[Worker] failed to release lock: %v", err)
	}
}

func (w *Worker) cooldownUntil(userID uuid.UUID, p platform.Platform) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	until, ok := w.cooldowns[cooldownKey{userID, p}]
	if !ok || !w.now().Before(until) {
		delete(w.cooldowns, cooldownKey{userID, p})
		return time.Time{}, false
	}
	return until, true
}

func (w *Worker) setCooldown(userID uuid.UUID, p platform.Platform) time.Time {
	until := w.now().Add(cooldownBase + time.Duration(w.randFloat()*float64(cooldownJitterMax)))
	w.mu.Lock()
	w.cooldowns[cooldownKey{userID, p}] = until
	w.mu.Unlock()
	return until
}
