package timesource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/tpmb/tpmb2/internal/errors"
	"github.com/tpmb/tpmb2/internal/resilience"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type scriptedQuery struct {
	offsets map[string]time.Duration
	calls   []string
}

func (q *scriptedQuery) query(_ context.Context, server string, _ time.Duration) (time.Duration, error) {
	q.calls = append(q.calls, server)
	if off, ok := q.offsets[server]; ok {
		return off, nil
	}
	return 0, errors.New("unreachable")
}

func newSource(clock clockwork.Clock, q *scriptedQuery, servers ...string) *Source {
	return New(Options{
		Servers:      servers,
		Timeout:      time.Second,
		MaxOffsetAge: 10 * time.Minute,
		Clock:        clock,
		Query:        q.query,
		Breaker:      resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 100}),
	})
}

func TestNowFallsBackToLocalClockBeforeSync(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(base)
	src := newSource(clock, &scriptedQuery{}, "a")

	assert.Equal(t, base, src.Now())
	assert.True(t, src.Status().Degraded)
}

func TestSyncUsesFirstReachableServer(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(base)
	q := &scriptedQuery{offsets: map[string]time.Duration{"b": 3 * time.Second, "c": time.Hour}}
	src := newSource(clock, q, "a", "b", "c")

	require.NoError(t, src.Sync(context.Background()))
	assert.Equal(t, []string{"a", "b"}, q.calls)
	assert.Equal(t, base.Add(3*time.Second), src.Now())

	st := src.Status()
	assert.Equal(t, "b", st.Server)
	assert.False(t, st.Degraded)
	assert.Equal(t, base, st.LastSync)
}

func TestOffsetExpires(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(base)
	q := &scriptedQuery{offsets: map[string]time.Duration{"a": 2 * time.Second}}
	src := newSource(clock, q, "a")
	require.NoError(t, src.Sync(context.Background()))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, base.Add(10*time.Minute+2*time.Second), src.Now())

	clock.Advance(time.Second)
	assert.Equal(t, base.Add(10*time.Minute+time.Second), src.Now())
	assert.True(t, src.Status().Degraded)
}

func TestSyncFailureReturnsTimeSourceError(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(base)
	q := &scriptedQuery{offsets: map[string]time.Duration{"a": time.Second}}
	src := newSource(clock, q, "a")
	require.NoError(t, src.Sync(context.Background()))

	delete(q.offsets, "a")
	err := src.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTimeSource(err))
	assert.Equal(t, base, src.Now(), "failed sync discards the offset")
}

func TestSyncWithoutServers(t *testing.T) {
	t.Parallel()

	src := newSource(clockwork.NewFakeClockAt(base), &scriptedQuery{})
	err := src.Sync(context.Background())
	assert.True(t, errs.IsTimeSource(err))
}

func TestOpenBreakerSkipsQueries(t *testing.T) {
	t.Parallel()

	q := &scriptedQuery{}
	src := New(Options{
		Servers: []string{"a"},
		Clock:   clockwork.NewFakeClockAt(base),
		Query:   q.query,
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 1, OpenTimeout: time.Hour}),
	})

	require.Error(t, src.Sync(context.Background()))
	err := src.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, q.calls, 1)
	assert.Equal(t, "open", src.Status().Breaker)
}
