// Package session manages a pool of reusable browser sessions. Creating the
// underlying stealth browser is the most expensive and failure-prone step in
// the pipeline, so sessions are reused per platform and recycled by age,
// use count, and health.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonathan/apply-engine/internal/platform"
)

// Handle is one live browser session owned by the pool.
type Handle interface {
	// Ping performs a lightweight liveness probe.
	Ping(ctx context.Context) error
	// Close destroys the underlying resource.
	Close(ctx context.Context) error
}

// Factory creates session handles for a platform.
type Factory interface {
	Create(ctx context.Context, p platform.Platform) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, p platform.Platform) (Handle, error)

// Create calls f.
func (f FactoryFunc) Create(ctx context.Context, p platform.Platform) (Handle, error) {
	return f(ctx, p)
}

const (
	defaultMaxSessions       = 10
	defaultMaxJobsPerSession = 25
	defaultMaxSessionAge     = 30 * time.Minute
	defaultProbeInterval     = 5 // probe every Nth use

	minHealthScore  = 0.3
	maxFailureCount = 3
)

// pooledSession wraps one handle with its reuse bookkeeping.
type pooledSession struct {
	handle        Handle
	platform      platform.Platform
	createdAt     time.Time
	lastUsed      time.Time
	jobsProcessed int
	healthScore   float64 // 0.0 - 1.0
	failureCount  int     // consecutive failures
}

func (ps *pooledSession) isExpired(maxAge time.Duration, now time.Time) bool {
	return now.Sub(ps.createdAt) > maxAge
}

func (ps *pooledSession) isOverused(maxJobs int) bool {
	return ps.jobsProcessed >= maxJobs
}

func (ps *pooledSession) isHealthy() bool {
	return ps.healthScore > minHealthScore && ps.failureCount < maxFailureCount
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Created        int `json:"sessions_created"`
	Reused         int `json:"sessions_reused"`
	Recycled       int `json:"sessions_recycled"`
	Probes         int `json:"health_checks"`
	FailedProbes   int `json:"failed_health_checks"`
	ActiveSessions int `json:"active_sessions"`
}

// Config holds the pool's recycling thresholds.
type Config struct {
	MaxSessions       int           // total handles across all platforms
	MaxJobsPerSession int           // recycle after this many uses
	MaxSessionAge     time.Duration // recycle when older
	ProbeInterval     int           // liveness probe every Nth use
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:       defaultMaxSessions,
		MaxJobsPerSession: defaultMaxJobsPerSession,
		MaxSessionAge:     defaultMaxSessionAge,
		ProbeInterval:     defaultProbeInterval,
	}
}

// Pool keeps at most one session per platform key, recycling stale or
// unhealthy handles. All counter mutation happens under the pool's lock;
// callers never touch a pooled session's state directly.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	factory  Factory
	sessions map[platform.Platform]*pooledSession
	stats    Stats

	now func() time.Time
}

// NewPool creates a pool that draws fresh sessions from factory.
func NewPool(cfg Config, factory Factory) *Pool {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.MaxJobsPerSession <= 0 {
		cfg.MaxJobsPerSession = defaultMaxJobsPerSession
	}
	if cfg.MaxSessionAge <= 0 {
		cfg.MaxSessionAge = defaultMaxSessionAge
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	return &Pool{
		cfg:      cfg,
		factory:  factory,
		sessions: make(map[platform.Platform]*pooledSession),
		now:      time.Now,
	}
}

// Acquire returns a session for the platform, reusing the pooled one when it
// is fresh, under its job budget, and healthy; otherwise the stale handle is
// closed and a new one is created.
func (p *Pool) Acquire(ctx context.Context, plat platform.Platform) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pooled, ok := p.sessions[plat]; ok {
		recycle := pooled.isExpired(p.cfg.MaxSessionAge, p.now()) ||
			pooled.isOverused(p.cfg.MaxJobsPerSession) ||
			!pooled.isHealthy()

		if !recycle && pooled.jobsProcessed%p.cfg.ProbeInterval == 0 {
			p.stats.Probes++
			if err := pooled.handle.Ping(ctx); err != nil {
				p.stats.FailedProbes++
				log.Printf("[Pool] liveness probe failed for %s, recycling: %v", plat, err)
				recycle = true
			}
		}

		if recycle {
			log.Printf("[Pool] recycling %s session (age: %.0fs, jobs: %d)",
				plat, p.now().Sub(pooled.createdAt).Seconds(), pooled.jobsProcessed)
			p.closeLocked(ctx, pooled)
			delete(p.sessions, plat)
		} else {
			pooled.lastUsed = p.now()
			pooled.jobsProcessed++
			p.stats.Reused++
			return pooled.handle, nil
		}
	}

	if len(p.sessions) >= p.cfg.MaxSessions {
		return nil, fmt.Errorf("session pool exhausted (%d/%d)", len(p.sessions), p.cfg.MaxSessions)
	}

	handle, err := p.factory.Create(ctx, plat)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", plat, err)
	}

	p.sessions[plat] = &pooledSession{
		handle:        handle,
		platform:      plat,
		createdAt:     p.now(),
		lastUsed:      p.now(),
		jobsProcessed: 1,
		healthScore:   1.0,
	}
	p.stats.Created++
	log.Printf("[Pool] created new %s session (%d/%d total)", plat, len(p.sessions), p.cfg.MaxSessions)
	return handle, nil
}

// Release reports the outcome of the job the session was used for. Health
// moves up slowly on success, down sharply on failure, and three consecutive
// failures force recycling.
func (p *Pool) Release(ctx context.Context, plat platform.Platform, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pooled, ok := p.sessions[plat]
	if !ok {
		return
	}

	if success {
		pooled.failureCount = 0
		pooled.healthScore = minFloat(1.0, pooled.healthScore+0.1)
		return
	}

	pooled.failureCount++
	pooled.healthScore = maxFloat(0.0, pooled.healthScore-0.3)

	if pooled.failureCount >= maxFailureCount {
		log.Printf("[Pool] too many failures for %s, recycling", plat)
		p.closeLocked(ctx, pooled)
		delete(p.sessions, plat)
	}
}

// Cleanup closes every pooled session. Used at shutdown.
func (p *Pool) Cleanup(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for plat, pooled := range p.sessions {
		p.closeLocked(ctx, pooled)
		delete(p.sessions, plat)
	}
	log.Printf("[Pool] all sessions cleaned up")
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.ActiveSessions = len(p.sessions)
	return s
}

func (p *Pool) closeLocked(ctx context.Context, pooled *pooledSession) {
	if err := pooled.handle.Close(ctx); err != nil {
		log.Printf("[Pool] error closing %s session: %v", pooled.platform, err)
	}
	p.stats.Recycled++
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
