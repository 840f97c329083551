package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testClock advances manually.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *testClock) *CircuitBreaker {
	cb := NewCircuitBreaker(5, 5*time.Minute)
	cb.now = clock.now
	return cb
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newTestClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		cb.RecordFailure("boom")
		assert.Equal(t, CircuitClosed, cb.State())
		assert.True(t, cb.CanExecute())
	}

	cb.RecordFailure("boom")
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newTestClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		cb.RecordFailure("boom")
	}
	cb.RecordSuccess()
	for i := 0; i < 4; i++ {
		cb.RecordFailure("boom")
	}

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	clock := newTestClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		cb.RecordFailure("boom")
	}
	assert.False(t, cb.CanExecute())

	clock.advance(5*time.Minute + time.Second)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestBreaker_ClosesAfterThreeHalfOpenSuccesses(t *testing.T) {
	clock := newTestClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		cb.RecordFailure("boom")
	}
	clock.advance(6 * time.Minute)
	assert.True(t, cb.CanExecute())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopensImmediately(t *testing.T) {
	clock := newTestClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		cb.RecordFailure("boom")
	}
	clock.advance(6 * time.Minute)
	assert.True(t, cb.CanExecute())

	cb.RecordFailure("still broken")
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.CanExecute())
}
