// Package router parses inbound text and menu actions, enforces operator
// authorization and dispatches to the scheduler, the registry, the template
// and the user menu.
//
// Every handled operator command appends exactly one audit event. Handlers
// validate and persist before touching in-memory state, so a rejected or
// failed command leaves no partial mutation behind.
package router

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tpmb/tpmb2/internal/broadcast"
	"github.com/tpmb/tpmb2/internal/domain/model"
	errs "github.com/tpmb/tpmb2/internal/errors"
	"github.com/tpmb/tpmb2/internal/session"
	"github.com/tpmb/tpmb2/internal/timesource"
)

// Operator command keywords.
const (
	CmdStart    = "start"
	CmdStop     = "stop"
	CmdMessage  = "message"
	CmdInterval = "interval"
	CmdGroups   = "groups"
	CmdOperator = "operator"
	CmdStatus   = "status"
)

// Scheduler is the broadcast state machine as seen by the router.
type Scheduler interface {
	Start(now time.Time) bool
	Stop() bool
	SetInterval(seconds int, now time.Time) error
	State() broadcast.State
	MinIntervalSeconds() int
}

// Registry is the set of broadcast destinations.
type Registry interface {
	Add(ctx context.Context, id int64, now time.Time) (bool, error)
	Remove(ctx context.Context, id int64) (bool, error)
	List() []model.Group
	Len() int
}

// Template is the current broadcast message.
type Template interface {
	Text() string
	Set(ctx context.Context, text string) error
}

// Menu is the end-user session menu.
type Menu interface {
	Show(user session.User, now time.Time) session.View
	Press(ctx context.Context, user session.User, action session.Action, now time.Time) session.View
	Text(ctx context.Context, user session.User, text string, now time.Time) session.View
}

// ConfigSaver persists the bot configuration.
type ConfigSaver interface {
	Save(ctx context.Context, cfg model.BotConfig) error
}

// Auditor appends audit events.
type Auditor interface {
	Append(ctx context.Context, event model.AuditEvent)
}

// Deps are the collaborators of a Router.
type Deps struct {
	Config    *model.BotConfig
	Saver     ConfigSaver
	Scheduler Scheduler
	Groups    Registry
	Template  Template
	Menu      Menu
	Auditor   Auditor
	Now       func() time.Time
	// TimeStatus is optional and enriches the status report.
	TimeStatus func() timesource.Status
	// OnCommand observes command outcomes.
	OnCommand   func(command string, outcome model.AuditOutcome)
	BotUsername string
	Logger      *slog.Logger
}

// Result is the outcome of handling one inbound event. Text is Telegram HTML
// addressed to the sender; View is set when the sender should see the menu.
type Result struct {
	Command string
	Text    string
	Err     error
	View    *session.View
	// Ignored is set for events addressed to another bot.
	Ignored bool
}

type Router struct {
	deps     Deps
	logger   *slog.Logger
	handlers map[string]commandHandler
}

type commandHandler func(ctx context.Context, actor int64, args string, now time.Time) (text, target string, err error)

// New creates a Router. The router mutates deps.Config in place; the caller
// must serialize every call.
func New(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OnCommand == nil {
		deps.OnCommand = func(string, model.AuditOutcome) {}
	}

	r := &Router{
		deps:   deps,
		logger: deps.Logger.With("component", "router"),
	}
	r.handlers = map[string]commandHandler{
		CmdStart:    r.handleStart,
		CmdStop:     r.handleStop,
		CmdMessage:  r.handleMessage,
		CmdInterval: r.handleInterval,
		CmdGroups:   r.handleGroups,
		CmdOperator: r.handleOperator,
		CmdStatus:   r.handleStatus,
	}
	return r
}

// OperatorID returns the current operator, or 0 when none is assigned.
func (r *Router) OperatorID() int64 {
	return r.deps.Config.OperatorID
}

// Message is one inbound text message.
type Message struct {
	From session.User
	Text string
	// Group is set when the message was posted in a group chat.
	Group bool
}

// Handle processes one inbound text message.
//
// Slash commands are always treated as commands. Bare keywords are commands
// only when sent by the operator, so end users typing ordinary words are
// never denied. In group chats only the operator and commands addressed to
// this bot by @mention are handled; the menu is private-chat only.
func (r *Router) Handle(ctx context.Context, msg Message) Result {
	now := r.deps.Now()
	sender := msg.From
	isOperator := r.isOperator(sender.ID)

	p, ok := parseCommand(msg.Text)
	if ok && p.mention != "" && r.deps.BotUsername != "" && !strings.EqualFold(p.mention, r.deps.BotUsername) {
		return Result{Ignored: true}
	}
	if msg.Group && !isOperator && (!ok || !p.slash || p.mention == "") {
		return Result{Ignored: true}
	}

	_, known := r.handlers[p.keyword]
	isCommand := ok && (p.slash || (isOperator && known))

	switch {
	case !isCommand && isOperator:
		return Result{Text: operatorHelp}
	case !isCommand:
		v := r.deps.Menu.Text(ctx, sender, msg.Text, now)
		return Result{View: &v}
	case !known && isOperator:
		err := errs.NewValidationError("unknown command "+p.keyword, nil)
		r.audit(ctx, sender.ID, p.keyword, p.args, model.OutcomeInvalid, err.Error(), now)
		return Result{Command: p.keyword, Err: err, Text: escape(err.Error()) + "\n\n" + operatorHelp}
	case !known && msg.Group:
		return Result{Ignored: true}
	case !known:
		v := r.deps.Menu.Show(sender, now)
		return Result{View: &v}
	case !isOperator:
		return r.deny(ctx, msg, p, now)
	}

	return r.dispatch(ctx, sender.ID, p, now)
}

// HandleAction processes an inline menu button press.
func (r *Router) HandleAction(ctx context.Context, user session.User, data string) Result {
	now := r.deps.Now()
	action, ok := session.ParseAction(data)
	if !ok {
		r.logger.DebugContext(ctx, "Unknown menu action", "user_id", user.ID, "data", data)
		v := r.deps.Menu.Show(user, now)
		return Result{View: &v}
	}
	v := r.deps.Menu.Press(ctx, user, action, now)
	return Result{View: &v}
}

func (r *Router) dispatch(ctx context.Context, actor int64, p parsed, now time.Time) Result {
	text, target, err := r.handlers[p.keyword](ctx, actor, p.args, now)
	if target == "" {
		target = p.args
	}

	switch {
	case err == nil:
		r.audit(ctx, actor, p.keyword, target, model.OutcomeSuccess, "", now)
		return Result{Command: p.keyword, Text: text}
	case errs.IsValidation(err):
		r.audit(ctx, actor, p.keyword, target, model.OutcomeInvalid, err.Error(), now)
	default:
		r.logger.ErrorContext(ctx, "Command failed", "command", p.keyword, "error", err)
		r.audit(ctx, actor, p.keyword, target, model.OutcomeFailed, err.Error(), now)
	}
	return Result{Command: p.keyword, Err: err, Text: "Error: " + escape(err.Error())}
}

func (r *Router) deny(ctx context.Context, msg Message, p parsed, now time.Time) Result {
	err := errs.NewAuthorizationError(p.keyword + " is restricted to the operator")
	r.audit(ctx, msg.From.ID, p.keyword, p.args, model.OutcomeDenied, err.Error(), now)
	r.logger.WarnContext(ctx, "Operator command denied", "command", p.keyword, "user_id", msg.From.ID, "group", msg.Group)

	if msg.Group {
		return Result{Command: p.keyword, Err: err}
	}
	v := r.deps.Menu.Show(msg.From, now)
	return Result{Command: p.keyword, Err: err, View: &v}
}

func (r *Router) isOperator(id int64) bool {
	return r.deps.Config.HasOperator() && id == r.deps.Config.OperatorID
}

// persist saves next and then makes it the live configuration.
func (r *Router) persist(ctx context.Context, next model.BotConfig) error {
	if err := r.deps.Saver.Save(ctx, next); err != nil {
		if errs.IsValidation(err) || errs.IsPersistence(err) {
			return err
		}
		return errs.NewPersistenceError("failed to save configuration", err)
	}
	*r.deps.Config = next
	return nil
}

func (r *Router) audit(ctx context.Context, actor int64, command, target string, outcome model.AuditOutcome, detail string, now time.Time) {
	r.deps.Auditor.Append(ctx, model.AuditEvent{
		Timestamp: now,
		ActorID:   actor,
		Action:    command,
		Target:    target,
		Outcome:   outcome,
		Detail:    detail,
	})
	r.deps.OnCommand(command, outcome)
}
