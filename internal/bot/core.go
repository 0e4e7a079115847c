package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tpmb/tpmb2/internal/audit"
	"github.com/tpmb/tpmb2/internal/broadcast"
	"github.com/tpmb/tpmb2/internal/config"
	"github.com/tpmb/tpmb2/internal/credentials"
	"github.com/tpmb/tpmb2/internal/database"
	"github.com/tpmb/tpmb2/internal/domain/model"
	errs "github.com/tpmb/tpmb2/internal/errors"
	"github.com/tpmb/tpmb2/internal/format"
	"github.com/tpmb/tpmb2/internal/groups"
	"github.com/tpmb/tpmb2/internal/metrics"
	"github.com/tpmb/tpmb2/internal/router"
	"github.com/tpmb/tpmb2/internal/session"
	"github.com/tpmb/tpmb2/internal/timesource"
)

// Outbound delivers broadcasts and operator relay messages.
type Outbound interface {
	broadcast.Sender
	session.Relay
}

// CredentialStore loads and saves the encrypted bot configuration.
type CredentialStore interface {
	Load(ctx context.Context) (model.BotConfig, error)
	Save(ctx context.Context, cfg model.BotConfig) error
}

// Clock is the corrected wall clock.
type Clock interface {
	Now() time.Time
	Sync(ctx context.Context) error
	Status() timesource.Status
}

// CoreDeps are the collaborators of a Core.
type CoreDeps struct {
	Config      *config.Config
	BotConfig   model.BotConfig
	BotUsername string
	Store       database.Store
	Credentials CredentialStore
	Outbound    Outbound
	Time        Clock
	Metrics     *metrics.Metrics
	Loop        *Loop
	Logger      *slog.Logger
}

// Core owns the live bot state: configuration, destinations, template,
// broadcast scheduler and user sessions. Every entry point submits its work
// to the event loop.
type Core struct {
	cfg       *config.Config
	botCfg    model.BotConfig
	saver     CredentialStore
	clock     Clock
	metrics   *metrics.Metrics
	loop      *Loop
	logger    *slog.Logger
	registry  *groups.Registry
	template  *format.Template
	scheduler *broadcast.Scheduler
	menu      *session.Manager
	router    *router.Router
}

// LoadBotConfig returns the stored bot configuration. On first start it
// seeds the store from the config file. A corrupt store is fatal.
func LoadBotConfig(ctx context.Context, store CredentialStore, cfg *config.Config, logger *slog.Logger) (model.BotConfig, error) {
	botCfg, err := store.Load(ctx)
	if err == nil {
		logger.Info("Loaded stored bot configuration", "operator_set", botCfg.HasOperator(), "running", botCfg.Running)
		return botCfg, nil
	}
	if !errors.Is(err, credentials.ErrNotFound) {
		return model.BotConfig{}, fmt.Errorf("failed to load bot configuration: %w", err)
	}

	botCfg = model.BotConfig{
		Token:           cfg.Telegram.Token,
		OperatorID:      cfg.Telegram.OperatorID,
		IntervalSeconds: int(cfg.Broadcast.DefaultInterval / time.Second),
		Running:         cfg.Broadcast.AutoStart,
	}
	if err := store.Save(ctx, botCfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("failed to seed bot configuration: %w", err)
	}
	logger.Info("Seeded bot configuration from config file", "operator_set", botCfg.HasOperator())
	return botCfg, nil
}

// NewCore loads persisted state, synchronizes the clock once and restores
// the broadcast state. It must be called before the loop starts.
func NewCore(ctx context.Context, deps CoreDeps) (*Core, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	log := deps.Logger.With("component", "core")

	c := &Core{
		cfg:     deps.Config,
		botCfg:  deps.BotConfig,
		saver:   deps.Credentials,
		clock:   deps.Time,
		metrics: deps.Metrics,
		loop:    deps.Loop,
		logger:  log,
	}

	text, found, err := deps.Store.LoadTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load message template: %w", err)
	}
	if !found {
		text = deps.Config.Broadcast.DefaultMessage
	}
	c.template = format.NewTemplate(text, deps.Store)

	c.registry, err = groups.Load(ctx, deps.Store, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}

	auditLog := audit.NewLog(deps.Store, clockwork.NewRealClock(), deps.Logger)

	minSeconds := int(deps.Config.Broadcast.MinInterval / time.Second)
	if c.botCfg.IntervalSeconds < minSeconds {
		log.Warn("Stored interval below minimum, using minimum",
			"stored_seconds", c.botCfg.IntervalSeconds, "min_seconds", minSeconds)
		c.botCfg.IntervalSeconds = minSeconds
	}
	c.scheduler, err = broadcast.NewScheduler(
		broadcast.Options{
			MinIntervalSeconds: minSeconds,
			SendTimeout:        deps.Config.Broadcast.SendTimeout,
			MaxConcurrentSends: deps.Config.Broadcast.MaxConcurrentSends,
		},
		c.botCfg.IntervalSeconds,
		c.registry,
		c.template,
		deps.Outbound,
		auditLog,
		deps.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast scheduler: %w", err)
	}

	c.menu = session.NewManager(
		menuContent(deps.Config),
		session.Deps{
			Relay:      deps.Outbound,
			OperatorID: func() int64 { return c.botCfg.OperatorID },
			Preview:    c.preview,
			OnRelay:    c.metrics.RecordRelay,
		},
		session.Options{
			TTL:        deps.Config.Session.TTL,
			RelayEvery: deps.Config.Session.RelayInterval,
			RelayBurst: deps.Config.Session.RelayBurst,
		},
		deps.Logger,
	)

	c.router = router.New(router.Deps{
		Config:     &c.botCfg,
		Saver:      deps.Credentials,
		Scheduler:  c.scheduler,
		Groups:     c.registry,
		Template:   c.template,
		Menu:       c.menu,
		Auditor:    auditLog,
		Now:        deps.Time.Now,
		TimeStatus: deps.Time.Status,
		OnCommand: func(command string, outcome model.AuditOutcome) {
			c.metrics.RecordCommand(command, string(outcome))
		},
		BotUsername: deps.BotUsername,
		Logger:      deps.Logger,
	})

	if err := c.SyncTime(ctx); err != nil {
		log.Warn("Initial time sync failed, using local clock", "error", err)
	}
	c.restore(ctx)
	c.updateGauges()

	return c, nil
}

// restore resumes broadcasting when it was running before shutdown or when
// auto start is configured.
func (c *Core) restore(ctx context.Context) {
	running := c.botCfg.Running || c.cfg.Broadcast.AutoStart
	c.scheduler.Restore(running, c.clock.Now())

	if running && !c.botCfg.Running {
		next := c.botCfg
		next.Running = true
		if err := c.saver.Save(ctx, next); err != nil {
			c.logger.Error("Failed to persist auto start", "error", err)
		} else {
			c.botCfg = next
		}
	}

	st := c.scheduler.State()
	c.logger.Info("Broadcast state restored",
		"status", st.Status,
		"interval_seconds", st.IntervalSeconds,
		"next_due_at", st.NextDueAt,
		"groups", c.registry.Len(),
	)
}

// HandleText routes one inbound text message.
func (c *Core) HandleText(ctx context.Context, msg router.Message) (router.Result, error) {
	var res router.Result
	err := c.loop.Do(ctx, func(ctx context.Context) error {
		res = c.router.Handle(ctx, msg)
		c.updateGauges()
		return nil
	})
	return res, err
}

// HandleAction routes one inline menu button press.
func (c *Core) HandleAction(ctx context.Context, user session.User, data string) (router.Result, error) {
	var res router.Result
	err := c.loop.Do(ctx, func(ctx context.Context) error {
		res = c.router.HandleAction(ctx, user, data)
		c.updateGauges()
		return nil
	})
	return res, err
}

// Tick fires the broadcast cycle when it is due. Delivery failures are
// reported through audit events and metrics, not as an error.
func (c *Core) Tick(ctx context.Context) error {
	return c.loop.Do(ctx, func(ctx context.Context) error {
		report := c.scheduler.Tick(ctx, c.clock.Now())
		if report == nil {
			return nil
		}

		c.metrics.RecordCycle(report.Sent, len(report.Failures))
		if err := report.Err(); err != nil {
			c.logger.WarnContext(ctx, "Broadcast deliveries failed", "failed", len(report.Failures), "error", err)
		}
		return nil
	})
}

// SweepSessions evicts idle user sessions.
func (c *Core) SweepSessions(ctx context.Context) error {
	return c.loop.Do(ctx, func(context.Context) error {
		c.menu.Sweep(c.clock.Now())
		c.updateGauges()
		return nil
	})
}

// SyncTime refreshes the network time offset. The time source is safe for
// concurrent use, so this does not go through the loop.
func (c *Core) SyncTime(ctx context.Context) error {
	err := c.clock.Sync(ctx)
	c.metrics.TimeOffset.Set(c.clock.Status().Offset.Seconds())
	if err != nil && !errs.IsTimeSource(err) {
		return errs.NewTimeSourceError("time sync failed", err)
	}
	return err
}

func (c *Core) preview(now time.Time) string {
	text := c.template.Render(now)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if header := c.cfg.Messages.PreviewHeader; header != "" {
		return header + "\n\n" + text
	}
	return text
}

func (c *Core) updateGauges() {
	c.metrics.Groups.Set(float64(c.registry.Len()))
	c.metrics.Sessions.Set(float64(c.menu.Len()))
}

func menuContent(cfg *config.Config) session.Content {
	m := cfg.Messages
	return session.Content{
		Welcome:          m.Welcome,
		OwnerInfo:        ownerInfo(cfg.Owner),
		Help:             m.Help,
		NoMessage:        m.NoMessage,
		RelayPrompt:      m.RelayPrompt,
		RelaySent:        m.RelaySent,
		RelayLimited:     m.RelayLimited,
		RelayUnavailable: m.RelayUnavailable,
		TryAgain:         m.TryAgain,
		InfoButton:       m.InfoButton,
		MessageButton:    m.MessageButton,
		ChatButton:       m.ChatButton,
		HelpButton:       m.HelpButton,
		BackButton:       m.BackButton,
	}
}

// ownerInfo renders the owner card. Owner fields are plain text.
func ownerInfo(o config.OwnerConfig) string {
	var b strings.Builder
	b.WriteString("<b>Owner information</b>\n")

	username := strings.TrimPrefix(strings.TrimSpace(o.Username), "@")
	if username != "" {
		b.WriteString("\n<b>Contact:</b> @" + html.EscapeString(username))
	}
	if o.Description != "" {
		b.WriteString("\n<b>About:</b> " + html.EscapeString(o.Description))
	}
	if o.AdditionalInfo != "" {
		b.WriteString("\n\n" + html.EscapeString(o.AdditionalInfo))
	}
	if username == "" && o.Description == "" && o.AdditionalInfo == "" {
		b.WriteString("\n<i>No owner information configured.</i>")
	}
	return b.String()
}
