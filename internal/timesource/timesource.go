// Package timesource provides network-corrected wall clock time.
//
// Sync queries NTP servers and caches the clock offset. Now never touches
// the network: it applies the cached offset while it is fresh and falls back
// to the local clock otherwise.
package timesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/jonboulle/clockwork"

	errs "github.com/tpmb/tpmb2/internal/errors"
	"github.com/tpmb/tpmb2/internal/resilience"
)

// QueryFunc returns the offset of the local clock relative to server.
type QueryFunc func(ctx context.Context, server string, timeout time.Duration) (time.Duration, error)

// Options configures a Source.
type Options struct {
	Servers      []string
	Timeout      time.Duration
	MaxOffsetAge time.Duration
	Clock        clockwork.Clock
	Query        QueryFunc
	Breaker      *resilience.Breaker
	Logger       *slog.Logger
}

// Status describes the last synchronization.
type Status struct {
	Offset   time.Duration
	LastSync time.Time
	Server   string
	Degraded bool
	Breaker  string
}

// Source is safe for concurrent use.
type Source struct {
	servers []string
	timeout time.Duration
	maxAge  time.Duration
	clock   clockwork.Clock
	query   QueryFunc
	breaker *resilience.Breaker
	logger  *slog.Logger

	mu       sync.Mutex
	synced   bool
	offset   time.Duration
	lastSync time.Time
	server   string
	warned   bool
}

// New creates a Source that has not synchronized yet.
func New(opts Options) *Source {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxOffsetAge <= 0 {
		opts.MaxOffsetAge = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Query == nil {
		opts.Query = queryNTP
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger := opts.Logger.With("component", "time_source")
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Name:        "ntp",
			CallTimeout: opts.Timeout * time.Duration(max(1, len(opts.Servers))),
			Logger:      logger,
		})
	}

	return &Source{
		servers: opts.Servers,
		timeout: opts.Timeout,
		maxAge:  opts.MaxOffsetAge,
		clock:   opts.Clock,
		query:   opts.Query,
		breaker: opts.Breaker,
		logger:  logger,
	}
}

// Sync queries the configured servers in order and keeps the first offset
// obtained. When every server fails the cached offset is discarded and a
// TimeSourceError is returned.
func (s *Source) Sync(ctx context.Context) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if len(s.servers) == 0 {
			return errors.New("no time servers configured")
		}
		var failures []error
		for _, server := range s.servers {
			if err := ctx.Err(); err != nil {
				failures = append(failures, err)
				break
			}
			offset, err := s.query(ctx, server, s.timeout)
			if err != nil {
				s.logger.Debug("Time server query failed", "server", server, "error", err)
				failures = append(failures, fmt.Errorf("%s: %w", server, err))
				continue
			}
			s.record(server, offset)
			return nil
		}
		return errors.Join(failures...)
	})
	if err != nil {
		s.mu.Lock()
		s.synced = false
		s.offset = 0
		s.mu.Unlock()
		return errs.NewTimeSourceError("time sync failed", err)
	}
	return nil
}

func (s *Source) record(server string, offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.synced = true
	s.offset = offset
	s.lastSync = s.clock.Now()
	s.server = server
	if s.warned {
		s.logger.Info("Time accuracy restored", "server", server, "offset", offset)
	}
	s.warned = false
	s.logger.Debug("Time synchronized", "server", server, "offset", offset)
}

// Now returns the corrected current time, or the local clock when no fresh
// offset is available. The first degraded read after a healthy period logs a
// warning.
func (s *Source) Now() time.Time {
	local := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh(local) {
		return local.Add(s.offset)
	}
	if !s.warned {
		s.warned = true
		s.logger.Warn("Time accuracy degraded, using local clock",
			"last_sync", s.lastSync,
			"max_offset_age", s.maxAge)
	}
	return local
}

// Status reports the current synchronization state.
func (s *Source) Status() Status {
	local := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Offset:   s.offset,
		LastSync: s.lastSync,
		Server:   s.server,
		Degraded: !s.fresh(local),
		Breaker:  s.breaker.State(),
	}
}

func (s *Source) fresh(local time.Time) bool {
	return s.synced && local.Sub(s.lastSync) <= s.maxAge
}

func queryNTP(ctx context.Context, server string, timeout time.Duration) (time.Duration, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}
