package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startLoop(t *testing.T) *Loop {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(discardLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoopSerializesJobs(t *testing.T) {
	t.Parallel()

	l := startLoop(t)
	counter := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(context.Context) error {
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestLoopRecoversPanics(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	err := l.Do(context.Background(), func(context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, l.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestLoopDoAfterStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(discardLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	cancel()
	<-done

	err := l.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLoopStopped)
}

func TestLoopDoCancelledContext(t *testing.T) {
	t.Parallel()

	l := NewLoop(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
