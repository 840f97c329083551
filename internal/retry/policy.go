// Package retry computes backoff delays for failed application attempts.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy computes the delay before an item's next attempt.
// Rate-limited failures back off from a larger base so a platform that is
// actively throttling gets a longer cool-off than an ordinary error.
type Policy struct {
	Base            time.Duration // base delay for ordinary failures
	RateLimitedBase time.Duration // base delay when the failure was a rate limit
	Multiplier      float64       // exponential growth factor per attempt
	Max             time.Duration // hard cap on any computed delay
	JitterFraction  float64       // uniform jitter, as a fraction of the computed delay

	// rand returns a uniform value in [0,1). Overridable in tests.
	rand func() float64
}

// DefaultPolicy returns the policy used by the queue worker: 20s base
// (60s when rate-limited), doubling per attempt, capped at 30 minutes,
// with up to 15% jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		Base:            20 * time.Second,
		RateLimitedBase: 60 * time.Second,
		Multiplier:      2.0,
		Max:             30 * time.Minute,
		JitterFraction:  0.15,
	}
}

// NextDelay returns the delay before attempt attemptNumber (1-based) may run.
// The result never exceeds Max. Jitter spreads simultaneous retries so a
// burst of failures does not come back as a synchronized retry storm.
func (p *Policy) NextDelay(attemptNumber int, rateLimited bool) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	base := p.Base
	if rateLimited {
		base = p.RateLimitedBase
	}

	delay := float64(base) * math.Pow(p.Multiplier, float64(attemptNumber-1))
	if delay > float64(p.Max) {
		delay = float64(p.Max)
	}

	if p.JitterFraction > 0 {
		delay += p.randFloat() * delay * p.JitterFraction
		if delay > float64(p.Max) {
			delay = float64(p.Max)
		}
	}

	return time.Duration(delay)
}

func (p *Policy) randFloat() float64 {
	if p.rand != nil {
		return p.rand()
	}
	return rand.Float64()
}
