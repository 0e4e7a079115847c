package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("event loop stopped")

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Loop runs submitted functions one at a time on a single goroutine. Every
// mutation of bot state goes through it.
type Loop struct {
	jobs    chan job
	stopped chan struct{}
	logger  *slog.Logger
}

func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		jobs:    make(chan job),
		stopped: make(chan struct{}),
		logger:  logger.With("component", "event_loop"),
	}
}

// Run processes jobs until ctx is cancelled. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	l.logger.Info("Event loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Event loop stopped")
			return nil
		case j := <-l.jobs:
			j.done <- l.exec(j)
		}
	}
}

// Do runs fn on the loop and waits for its result. The job is dropped when
// ctx ends before the loop picks it up.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
	return <-j.done
}

func (l *Loop) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered panic in event loop job", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("event loop job panicked: %v", r)
		}
	}()

	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx)
}
