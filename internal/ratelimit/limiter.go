package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonathan/apply-engine/internal/platform"
)

// Stats is a snapshot of one platform's limiter activity.
type Stats struct {
	Allowed      int          `json:"allowed"`
	Denied       int          `json:"denied"`
	Delayed      int          `json:"delayed"`
	HourlyCount  int          `json:"hourly_count"`
	DailyCount   int          `json:"daily_count"`
	CircuitState CircuitState `json:"circuit_state"`
}

// platformState holds the token bucket, window counters, and breaker for one
// platform. All fields are guarded by the owning Limiter's mutex except the
// breaker, which has its own.
type platformState struct {
	tokens      float64
	lastRefill  time.Time
	hourlyCount int
	dailyCount  int
	breaker     *CircuitBreaker
	allowed     int
	denied      int
	delayed     int
}

// Limiter enforces per-platform token-bucket pacing, per-platform hourly and
// daily ceilings, a global daily ceiling, and circuit breaking. One Limiter
// instance is shared by all workers in a process; state does not survive
// restarts.
type Limiter struct {
	mu          sync.Mutex
	cfg         Config
	states      map[platform.Platform]*platformState
	globalCount int
	day         time.Time
	hour        time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter with the given config.
func NewLimiter(cfg Config) *Limiter {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.Aggressive {
		log.Printf("[RateLimiter] aggressive mode enabled - 2x faster but higher ban risk")
	}
	l := &Limiter{
		cfg:    cfg,
		states: make(map[platform.Platform]*platformState),
		now:    time.Now,
	}
	l.day = dateOf(l.now())
	l.hour = hourOf(l.now())
	l.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	return l
}

// Acquire requests permission to make one call against a platform. It returns
// false when the circuit is open or an hourly or daily ceiling is exhausted.
// When the bucket is empty it waits for the next token, but never longer than
// MaxWait.
func (l *Limiter) Acquire(ctx context.Context, p platform.Platform) (bool, error) {
	state := l.state(p)

	if !state.breaker.CanExecute() {
		l.mu.Lock()
		state.denied++
		l.mu.Unlock()
		log.Printf("[RateLimiter] circuit open for %s, request blocked", p)
		return false, nil
	}

	limits := LimitsFor(p, l.cfg.Aggressive)

	for {
		l.mu.Lock()
		l.rolloverLocked()

		if state.hourlyCount >= limits.PerHour {
			state.denied++
			l.mu.Unlock()
			log.Printf("[RateLimiter] hourly cap reached for %s (%d)", p, limits.PerHour)
			return false, nil
		}
		if state.dailyCount >= limits.PerDay {
			state.denied++
			l.mu.Unlock()
			log.Printf("[RateLimiter] daily cap reached for %s (%d)", p, limits.PerDay)
			return false, nil
		}
		if l.cfg.GlobalDailyCap > 0 && l.globalCount >= l.cfg.GlobalDailyCap {
			state.denied++
			l.mu.Unlock()
			log.Printf("[RateLimiter] global daily cap reached (%d)", l.cfg.GlobalDailyCap)
			return false, nil
		}

		l.refillLocked(state, limits)

		if state.tokens >= 1.0 {
			state.tokens -= 1.0
			state.hourlyCount++
			state.dailyCount++
			l.globalCount++
			state.allowed++
			l.mu.Unlock()
			return true, nil
		}

		rate := float64(limits.PerMinute) / 60.0 // tokens per second
		wait := time.Duration((1.0 - state.tokens) / rate * float64(time.Second))
		if wait > l.cfg.MaxWait {
			state.denied++
			l.mu.Unlock()
			return false, nil
		}
		state.delayed++
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// RecordSuccess reports a successful call for breaker bookkeeping.
func (l *Limiter) RecordSuccess(p platform.Platform) {
	l.state(p).breaker.RecordSuccess()
}

// RecordFailure reports a failed call for breaker bookkeeping.
func (l *Limiter) RecordFailure(p platform.Platform, reason string) {
	l.state(p).breaker.RecordFailure(reason)
}

// Healthy reports whether the platform's circuit is closed.
func (l *Limiter) Healthy(p platform.Platform) bool {
	return l.state(p).breaker.State() == CircuitClosed
}

// Stats returns a per-platform activity snapshot.
func (l *Limiter) Stats() map[platform.Platform]Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[platform.Platform]Stats, len(l.states))
	for p, s := range l.states {
		out[p] = Stats{
			Allowed:      s.allowed,
			Denied:       s.denied,
			Delayed:      s.delayed,
			HourlyCount:  s.hourlyCount,
			DailyCount:   s.dailyCount,
			CircuitState: s.breaker.State(),
		}
	}
	return out
}

// state returns the platform's state, creating it with a full bucket on first
// use.
func (l *Limiter) state(p platform.Platform) *platformState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.states[p]; ok {
		return s
	}
	limits := LimitsFor(p, l.cfg.Aggressive)
	breaker := NewCircuitBreaker(l.cfg.FailureThreshold, l.cfg.BreakerCooldown)
	breaker.now = l.now
	s := &platformState{
		tokens:     float64(limits.Burst),
		lastRefill: l.now(),
		breaker:    breaker,
	}
	l.states[p] = s
	return s
}

// refillLocked adds tokens proportional to elapsed time, capped at burst.
func (l *Limiter) refillLocked(s *platformState, limits Limits) {
	now := l.now()
	elapsed := now.Sub(s.lastRefill)
	s.tokens += elapsed.Seconds() * float64(limits.PerMinute) / 60.0
	if s.tokens > float64(limits.Burst) {
		s.tokens = float64(limits.Burst)
	}
	s.lastRefill = now
}

// rolloverLocked resets window counters when the clock crosses an hour or day
// boundary.
func (l *Limiter) rolloverLocked() {
	now := l.now()
	if hour := hourOf(now); !hour.Equal(l.hour) {
		l.hour = hour
		for _, s := range l.states {
			s.hourlyCount = 0
		}
	}
	if today := dateOf(now); !today.Equal(l.day) {
		l.day = today
		l.globalCount = 0
		for _, s := range l.states {
			s.dailyCount = 0
		}
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func hourOf(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}
