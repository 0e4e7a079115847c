package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, OpenTimeout: time.Hour})
	boom := errors.New("boom")
	calls := 0
	op := func(context.Context) error {
		calls++
		return boom
	}

	ctx := context.Background()
	assert.ErrorIs(t, b.Execute(ctx, op), boom)
	assert.ErrorIs(t, b.Execute(ctx, op), boom)
	assert.Equal(t, "open", b.State())

	err := b.Execute(ctx, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakerMarksDeadlineAsTimeout(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", CallTimeout: 10 * time.Millisecond})
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerPassesSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"})
	require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, "closed", b.State())
}
