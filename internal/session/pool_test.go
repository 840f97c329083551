package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/apply-engine/internal/platform"
)

// fakeHandle records ping and close calls.
type fakeHandle struct {
	id      int
	pingErr error
	pings   int
	closed  bool
}

func (h *fakeHandle) Ping(context.Context) error {
	h.pings++
	return h.pingErr
}

func (h *fakeHandle) Close(context.Context) error {
	h.closed = true
	return nil
}

// fakeFactory hands out numbered handles.
type fakeFactory struct {
	created []*fakeHandle
	err     error
}

func (f *fakeFactory) Create(_ context.Context, _ platform.Platform) (Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{id: len(f.created)}
	f.created = append(f.created, h)
	return h, nil
}

func newTestPool(cfg Config) (*Pool, *fakeFactory, *time.Time) {
	factory := &fakeFactory{}
	pool := NewPool(cfg, factory)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }
	return pool, factory, &now
}

func TestAcquire_ReusesHealthySession(t *testing.T) {
	pool, factory, _ := newTestPool(DefaultConfig())
	ctx := context.Background()

	h1, err := pool.Acquire(ctx, platform.PlatformGreenhouse)
	require.NoError(t, err)
	h2, err := pool.Acquire(ctx, platform.PlatformGreenhouse)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Len(t, factory.created, 1)
	assert.Equal(t, 1, pool.Stats().Reused)
}

func TestAcquire_SeparateSessionPerPlatform(t *testing.T) {
	pool, factory, _ := newTestPool(DefaultConfig())
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformGreenhouse)
	require.NoError(t, err)
	_, err = pool.Acquire(ctx, platform.PlatformLever)
	require.NoError(t, err)

	assert.Len(t, factory.created, 2)
	assert.Equal(t, 2, pool.Stats().ActiveSessions)
}

func TestAcquire_RecyclesExpiredSession(t *testing.T) {
	pool, factory, now := newTestPool(DefaultConfig())
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformGreenhouse)
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)

	_, err = pool.Acquire(ctx, platform.PlatformGreenhouse)
	require.NoError(t, err)

	assert.Len(t, factory.created, 2)
	assert.True(t, factory.created[0].closed, "expired session must be closed")
}

func TestAcquire_RecyclesOverusedSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxJobsPerSession = 3
	cfg.ProbeInterval = 100 // keep probes out of this test
	pool, factory, _ := newTestPool(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := pool.Acquire(ctx, platform.PlatformLever)
		require.NoError(t, err)
	}
	// jobsProcessed is now 3 == MaxJobsPerSession; next acquire recycles.
	_, err := pool.Acquire(ctx, platform.PlatformLever)
	require.NoError(t, err)

	assert.Len(t, factory.created, 2)
	assert.True(t, factory.created[0].closed)
}

func TestAcquire_ProbeFailureForcesRecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeInterval = 2
	pool, factory, _ := newTestPool(cfg)
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformIndeed)
	require.NoError(t, err)
	factory.created[0].pingErr = errors.New("browser gone")

	// jobsProcessed=1 at first reuse (no probe), =2 at second (probe fires).
	_, err = pool.Acquire(ctx, platform.PlatformIndeed)
	require.NoError(t, err)
	_, err = pool.Acquire(ctx, platform.PlatformIndeed)
	require.NoError(t, err)

	assert.Len(t, factory.created, 2)
	assert.True(t, factory.created[0].closed)
	assert.Equal(t, 1, pool.Stats().FailedProbes)
}

func TestRelease_FailuresDegradeHealthAndRecycle(t *testing.T) {
	pool, factory, _ := newTestPool(DefaultConfig())
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformWorkday)
	require.NoError(t, err)

	pool.Release(ctx, platform.PlatformWorkday, false)
	pool.Release(ctx, platform.PlatformWorkday, false)
	assert.False(t, factory.created[0].closed, "two failures are tolerated")

	pool.Release(ctx, platform.PlatformWorkday, false)
	assert.True(t, factory.created[0].closed, "third consecutive failure recycles")

	// A fresh session is created afterwards; the failed handle never returns.
	h, err := pool.Acquire(ctx, platform.PlatformWorkday)
	require.NoError(t, err)
	assert.NotSame(t, factory.created[0], h)
}

func TestRelease_SuccessResetsFailureStreak(t *testing.T) {
	pool, factory, _ := newTestPool(DefaultConfig())
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformAshby)
	require.NoError(t, err)

	pool.Release(ctx, platform.PlatformAshby, false)
	pool.Release(ctx, platform.PlatformAshby, false)
	pool.Release(ctx, platform.PlatformAshby, true)
	pool.Release(ctx, platform.PlatformAshby, false)
	pool.Release(ctx, platform.PlatformAshby, false)

	assert.False(t, factory.created[0].closed)
}

func TestAcquire_UnhealthySessionNotReturned(t *testing.T) {
	pool, factory, _ := newTestPool(DefaultConfig())
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformDice)
	require.NoError(t, err)

	// Two failures drop health to 0.4; a third would recycle via Release, so
	// degrade health only: failure, success (resets streak), failure, failure.
	pool.Release(ctx, platform.PlatformDice, false) // 0.7
	pool.Release(ctx, platform.PlatformDice, true)  // 0.8, streak reset
	pool.Release(ctx, platform.PlatformDice, false) // 0.5
	pool.Release(ctx, platform.PlatformDice, false) // 0.2 < 0.3, streak 2

	_, err = pool.Acquire(ctx, platform.PlatformDice)
	require.NoError(t, err)
	assert.Len(t, factory.created, 2, "unhealthy session replaced on next acquire")
	assert.True(t, factory.created[0].closed)
}

func TestAcquire_PoolSizeCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 1
	pool, _, _ := newTestPool(cfg)
	ctx := context.Background()

	_, err := pool.Acquire(ctx, platform.PlatformGreenhouse)
	require.NoError(t, err)

	_, err = pool.Acquire(ctx, platform.PlatformLever)
	assert.ErrorContains(t, err, "session pool exhausted")
}

func TestCleanup_ClosesEverything(t *testing.T) {
	pool, factory, _ := newTestPool(DefaultConfig())
	ctx := context.Background()

	_, _ = pool.Acquire(ctx, platform.PlatformGreenhouse)
	_, _ = pool.Acquire(ctx, platform.PlatformLever)

	pool.Cleanup(ctx)

	for _, h := range factory.created {
		assert.True(t, h.closed)
	}
	assert.Equal(t, 0, pool.Stats().ActiveSessions)
}

func TestAcquire_FactoryErrorPropagates(t *testing.T) {
	factory := &fakeFactory{err: errors.New("chrome not installed")}
	pool := NewPool(DefaultConfig(), factory)

	_, err := pool.Acquire(context.Background(), platform.PlatformGreenhouse)
	assert.ErrorContains(t, err, "failed to create")
}
