// Package broadcast implements the periodic broadcast state machine.
//
// The scheduler does not own a timer. A driver calls Tick on a fine-grained
// cadence and the scheduler decides whether a broadcast cycle is due.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tpmb/tpmb2/internal/domain/model"
	errs "github.com/tpmb/tpmb2/internal/errors"
)

// Status is the lifecycle state of the scheduler.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	default:
		return "stopped"
	}
}

// State is a snapshot of the scheduler. Zero times mean unset.
type State struct {
	Status          Status
	IntervalSeconds int
	LastSentAt      time.Time
	NextDueAt       time.Time
}

// Sender delivers a rendered message to one destination.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Destinations lists the current broadcast targets.
type Destinations interface {
	List() []model.Group
}

// Message renders the broadcast text for a point in time.
type Message interface {
	Render(now time.Time) string
}

// Auditor receives one event per destination and cycle.
type Auditor interface {
	Append(ctx context.Context, event model.AuditEvent)
}

// Options bound the scheduler's behaviour.
type Options struct {
	MinIntervalSeconds int
	SendTimeout        time.Duration
	MaxConcurrentSends int
}

// SendFailure is a failed delivery within one cycle.
type SendFailure struct {
	GroupID int64
	Err     error
}

// CycleReport describes one completed broadcast cycle.
type CycleReport struct {
	At             time.Time
	Destinations   int
	Sent           int
	Failures       []SendFailure
	NoDestinations bool
	EmptyMessage   bool
}

// Err joins the delivery failures of the cycle, or returns nil.
func (r *CycleReport) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	joined := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		joined = append(joined, f.Err)
	}
	return errors.Join(joined...)
}

// Scheduler is the broadcast state machine. It is not safe for concurrent
// use; the bot event loop serializes every call.
type Scheduler struct {
	opts     Options
	groups   Destinations
	message  Message
	sender   Sender
	auditor  Auditor
	logger   *slog.Logger
	status   Status
	interval int
	lastSent time.Time
	nextDue  time.Time
}

// NewScheduler creates a stopped scheduler with the given interval.
func NewScheduler(
	opts Options,
	intervalSeconds int,
	groups Destinations,
	message Message,
	sender Sender,
	auditor Auditor,
	logger *slog.Logger,
) (*Scheduler, error) {
	if opts.MinIntervalSeconds < 1 {
		opts.MinIntervalSeconds = 1
	}
	if opts.MaxConcurrentSends < 1 {
		opts.MaxConcurrentSends = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Scheduler{
		opts:    opts,
		groups:  groups,
		message: message,
		sender:  sender,
		auditor: auditor,
		logger:  logger.With("component", "broadcast_scheduler"),
		status:  StatusStopped,
	}
	if err := s.validateInterval(intervalSeconds); err != nil {
		return nil, err
	}
	s.interval = intervalSeconds
	return s, nil
}

// State returns a snapshot of the scheduler state.
func (s *Scheduler) State() State {
	return State{
		Status:          s.status,
		IntervalSeconds: s.interval,
		LastSentAt:      s.lastSent,
		NextDueAt:       s.nextDue,
	}
}

// MinIntervalSeconds is the smallest interval SetInterval accepts.
func (s *Scheduler) MinIntervalSeconds() int {
	return s.opts.MinIntervalSeconds
}

// Start moves a stopped scheduler to running with the first cycle due one
// interval after now. It returns false, leaving the state untouched, when the
// scheduler is already running.
func (s *Scheduler) Start(now time.Time) bool {
	if s.status == StatusRunning {
		return false
	}
	s.status = StatusRunning
	s.nextDue = now.Add(s.intervalDuration())
	s.logger.Info("Broadcast started", "interval_seconds", s.interval, "next_due_at", s.nextDue)
	return true
}

// Restore reapplies a persisted running flag at startup.
func (s *Scheduler) Restore(running bool, now time.Time) {
	if running {
		s.Start(now)
		return
	}
	s.Stop()
}

// Stop moves a running scheduler to stopped. A cycle already in progress is
// not interrupted. It returns false when the scheduler was already stopped.
func (s *Scheduler) Stop() bool {
	if s.status == StatusStopped {
		return false
	}
	s.status = StatusStopped
	s.nextDue = time.Time{}
	s.logger.Info("Broadcast stopped")
	return true
}

// SetInterval changes the interval. When running, the next cycle is
// rescheduled one new interval after now.
func (s *Scheduler) SetInterval(seconds int, now time.Time) error {
	if err := s.validateInterval(seconds); err != nil {
		return err
	}
	s.interval = seconds
	if s.status == StatusRunning {
		s.nextDue = now.Add(s.intervalDuration())
	}
	s.logger.Info("Broadcast interval changed", "interval_seconds", seconds, "next_due_at", s.nextDue)
	return nil
}

// Tick runs a broadcast cycle if the scheduler is running and now has reached
// the due time. It returns nil when no cycle ran. Delivery failures never
// abort the cycle; they are collected in the report.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) *CycleReport {
	if s.status != StatusRunning || now.Before(s.nextDue) {
		return nil
	}

	destinations := s.groups.List()
	report := &CycleReport{At: now, Destinations: len(destinations)}
	text := s.message.Render(now)

	switch {
	case len(destinations) == 0:
		report.NoDestinations = true
		s.logger.InfoContext(ctx, "Broadcast due but no destinations configured")
		s.auditor.Append(ctx, model.AuditEvent{
			Timestamp: now,
			Action:    model.ActionBroadcastCycle,
			Outcome:   model.OutcomeNoDestinations,
		})
	case strings.TrimSpace(text) == "":
		report.EmptyMessage = true
		s.logger.WarnContext(ctx, "Broadcast due but message template is empty")
		s.auditor.Append(ctx, model.AuditEvent{
			Timestamp: now,
			Action:    model.ActionBroadcastCycle,
			Outcome:   model.OutcomeFailed,
			Detail:    "empty message template",
		})
	default:
		s.fanOut(ctx, now, destinations, text, report)
	}

	s.lastSent = now
	s.nextDue = now.Add(s.intervalDuration())

	s.logger.InfoContext(ctx, "Broadcast cycle finished",
		"destinations", report.Destinations,
		"sent", report.Sent,
		"failed", len(report.Failures),
		"next_due_at", s.nextDue)
	return report
}

func (s *Scheduler) fanOut(ctx context.Context, now time.Time, destinations []model.Group, text string, report *CycleReport) {
	results := make([]error, len(destinations))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrentSends)
	for i, dest := range destinations {
		g.Go(func() error {
			results[i] = s.send(ctx, dest.ID, text)
			return nil
		})
	}
	_ = g.Wait()

	for i, dest := range destinations {
		ev := model.AuditEvent{
			Timestamp: now,
			Action:    model.ActionBroadcastSend,
			Target:    strconv.FormatInt(dest.ID, 10),
			Outcome:   model.OutcomeSuccess,
		}
		if err := results[i]; err != nil {
			report.Failures = append(report.Failures, SendFailure{GroupID: dest.ID, Err: err})
			ev.Outcome = model.OutcomeFailed
			ev.Detail = err.Error()
			s.logger.WarnContext(ctx, "Broadcast delivery failed", "group_id", dest.ID, "error", err)
		} else {
			report.Sent++
		}
		s.auditor.Append(ctx, ev)
	}
}

// send bounds a single delivery by the send timeout even if the sender
// ignores its context.
func (s *Scheduler) send(ctx context.Context, chatID int64, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.sender.Send(sendCtx, chatID, text)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errs.IsTransport(err) {
			return err
		}
		return errs.NewTransportError(chatID, fmt.Sprintf("send to %d failed", chatID), err)
	case <-sendCtx.Done():
		return errs.NewTransportError(chatID, fmt.Sprintf("send to %d timed out", chatID), sendCtx.Err())
	}
}

func (s *Scheduler) validateInterval(seconds int) error {
	if seconds < s.opts.MinIntervalSeconds {
		return errs.NewValidationError(
			fmt.Sprintf("interval must be at least %d seconds, got %d", s.opts.MinIntervalSeconds, seconds), nil)
	}
	return nil
}

func (s *Scheduler) intervalDuration() time.Duration {
	return time.Duration(s.interval) * time.Second
}
