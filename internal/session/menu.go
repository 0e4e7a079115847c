// Package session implements the per-user inline menu shown to end users.
//
// Each user has an ephemeral Session with a menu state. Sessions are created
// on first contact, expire after an idle TTL and are never persisted. The
// Manager is not safe for concurrent use; the bot event loop owns it.
package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// State is a user's position in the menu.
type State int

const (
	MainMenu State = iota
	ViewingInfo
	ViewingMessage
	InChatRelay
	ViewingHelp
)

func (s State) String() string {
	switch s {
	case ViewingInfo:
		return "viewing_info"
	case ViewingMessage:
		return "viewing_message"
	case InChatRelay:
		return "in_chat_relay"
	case ViewingHelp:
		return "viewing_help"
	default:
		return "main_menu"
	}
}

// Action is a menu button identifier. Values double as Telegram callback data.
type Action string

const (
	ActionInfoOwner     Action = "info_owner"
	ActionShowMessage   Action = "show_message"
	ActionEncryptedChat Action = "encrypted_chat"
	ActionHelp          Action = "help"
	ActionBack          Action = "back_to_main"
)

var actionTargets = map[Action]State{
	ActionInfoOwner:     ViewingInfo,
	ActionShowMessage:   ViewingMessage,
	ActionEncryptedChat: InChatRelay,
	ActionHelp:          ViewingHelp,
}

// ParseAction reports whether data names a known menu action.
func ParseAction(data string) (Action, bool) {
	a := Action(data)
	if a == ActionBack {
		return a, true
	}
	_, ok := actionTargets[a]
	return a, ok
}

// Button is one inline button.
type Button struct {
	Label  string
	Action Action
}

// View is a transport-neutral menu screen. Text is Telegram HTML.
type View struct {
	Text    string
	Buttons [][]Button
}

// User identifies the person interacting with the menu.
type User struct {
	ID   int64
	Name string
}

// Relay carries end-user messages to the operator.
type Relay interface {
	RequestChat(ctx context.Context, operatorID int64, from User) error
	Forward(ctx context.Context, operatorID int64, from User, text string) error
}

// Content holds the user-facing texts of the menu.
type Content struct {
	Welcome          string
	OwnerInfo        string
	Help             string
	NoMessage        string
	RelayPrompt      string
	RelaySent        string
	RelayLimited     string
	RelayUnavailable string
	TryAgain         string

	InfoButton    string
	MessageButton string
	ChatButton    string
	HelpButton    string
	BackButton    string
}

// Deps are the collaborators read or driven by the menu.
type Deps struct {
	Relay Relay
	// OperatorID returns the current operator, or 0 when none is assigned.
	OperatorID func() int64
	// Preview renders the current broadcast message.
	Preview func(now time.Time) string
	// OnRelay observes relay outcomes: "sent", "failed" or "limited".
	OnRelay func(outcome string)
}

// Options bound the session table and relay rate.
type Options struct {
	TTL        time.Duration
	RelayEvery time.Duration
	RelayBurst int
}

// Session is the menu state of one user.
type Session struct {
	UserID    int64
	State     State
	CreatedAt time.Time
	LastSeen  time.Time

	limiter *rate.Limiter
}

type Manager struct {
	content  Content
	deps     Deps
	opts     Options
	sessions map[int64]*Session
	logger   *slog.Logger
}

func NewManager(content Content, deps Deps, opts Options, logger *slog.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.RelayEvery <= 0 {
		opts.RelayEvery = 3 * time.Second
	}
	if opts.RelayBurst < 1 {
		opts.RelayBurst = 1
	}
	if deps.OperatorID == nil {
		deps.OperatorID = func() int64 { return 0 }
	}
	if deps.Preview == nil {
		deps.Preview = func(time.Time) string { return "" }
	}
	if deps.OnRelay == nil {
		deps.OnRelay = func(string) {}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		content:  content,
		deps:     deps,
		opts:     opts,
		sessions: make(map[int64]*Session),
		logger:   logger.With("component", "session"),
	}
}

// Show resets the user to the main menu.
func (m *Manager) Show(user User, now time.Time) View {
	s := m.session(user.ID, now)
	s.State = MainMenu
	return m.mainView()
}

// Press applies a menu button. Invalid transitions re-render the current
// screen without changing state.
func (m *Manager) Press(ctx context.Context, user User, action Action, now time.Time) View {
	s := m.session(user.ID, now)

	if action == ActionBack {
		if s.State != MainMenu {
			m.logger.DebugContext(ctx, "Menu transition", "user_id", user.ID, "from", s.State, "to", MainMenu)
		}
		s.State = MainMenu
		return m.mainView()
	}

	target, ok := actionTargets[action]
	if !ok || s.State != MainMenu {
		return m.render(s, now)
	}

	if target == InChatRelay {
		return m.enterRelay(ctx, s, user, now)
	}

	m.logger.DebugContext(ctx, "Menu transition", "user_id", user.ID, "from", s.State, "to", target)
	s.State = target
	return m.render(s, now)
}

// Text handles free text. In InChatRelay it is forwarded to the operator and
// the session stays in relay; elsewhere the main menu is shown.
func (m *Manager) Text(ctx context.Context, user User, text string, now time.Time) View {
	s := m.session(user.ID, now)
	if s.State != InChatRelay {
		s.State = MainMenu
		return m.mainView()
	}

	operatorID := m.deps.OperatorID()
	if operatorID == 0 {
		s.State = MainMenu
		return m.withMain(m.content.RelayUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return m.relayView(m.content.RelayPrompt)
	}
	if !s.limiter.AllowN(now, 1) {
		m.deps.OnRelay("limited")
		return m.relayView(m.content.RelayLimited)
	}

	if err := m.deps.Relay.Forward(ctx, operatorID, user, text); err != nil {
		m.deps.OnRelay("failed")
		m.logger.WarnContext(ctx, "Relay to operator failed", "user_id", user.ID, "error", err)
		return m.relayView(m.content.TryAgain)
	}
	m.deps.OnRelay("sent")
	return m.relayView(m.content.RelaySent)
}

// state reports the user's current menu state. Unknown or expired users are
// in MainMenu.
func (m *Manager) state(userID int64, now time.Time) State {
	s, ok := m.sessions[userID]
	if !ok || m.expired(s, now) {
		return MainMenu
	}
	return s.State
}

// Sweep evicts idle sessions and returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("Evicted idle sessions", "count", removed, "remaining", len(m.sessions))
	}
	return removed
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	return len(m.sessions)
}

func (m *Manager) session(userID int64, now time.Time) *Session {
	s, ok := m.sessions[userID]
	if !ok || m.expired(s, now) {
		s = &Session{
			UserID:    userID,
			State:     MainMenu,
			CreatedAt: now,
			limiter:   rate.NewLimiter(rate.Every(m.opts.RelayEvery), m.opts.RelayBurst),
		}
		m.sessions[userID] = s
	}
	s.LastSeen = now
	return s
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return now.Sub(s.LastSeen) > m.opts.TTL
}

func (m *Manager) enterRelay(ctx context.Context, s *Session, user User, now time.Time) View {
	operatorID := m.deps.OperatorID()
	if operatorID == 0 {
		return m.withMain(m.content.RelayUnavailable)
	}
	if err := m.deps.Relay.RequestChat(ctx, operatorID, user); err != nil {
		m.deps.OnRelay("failed")
		m.logger.WarnContext(ctx, "Chat request to operator failed", "user_id", user.ID, "error", err)
		return m.withMain(m.content.TryAgain)
	}
	m.logger.DebugContext(ctx, "Menu transition", "user_id", user.ID, "from", s.State, "to", InChatRelay)
	s.State = InChatRelay
	return m.render(s, now)
}

func (m *Manager) render(s *Session, now time.Time) View {
	switch s.State {
	case ViewingInfo:
		return m.backView(m.content.OwnerInfo)
	case ViewingMessage:
		preview := m.deps.Preview(now)
		if strings.TrimSpace(preview) == "" {
			preview = m.content.NoMessage
		}
		return m.backView(preview)
	case ViewingHelp:
		return m.backView(m.content.Help)
	case InChatRelay:
		return m.relayView(m.content.RelayPrompt)
	default:
		return m.mainView()
	}
}

func (m *Manager) mainView() View {
	return m.withMain(m.content.Welcome)
}

func (m *Manager) withMain(text string) View {
	c := m.content
	return View{
		Text: text,
		Buttons: [][]Button{
			{{Label: c.InfoButton, Action: ActionInfoOwner}, {Label: c.MessageButton, Action: ActionShowMessage}},
			{{Label: c.ChatButton, Action: ActionEncryptedChat}, {Label: c.HelpButton, Action: ActionHelp}},
		},
	}
}

func (m *Manager) backView(text string) View {
	return View{
		Text:    text,
		Buttons: [][]Button{{{Label: m.content.BackButton, Action: ActionBack}}},
	}
}

func (m *Manager) relayView(text string) View {
	return m.backView(text)
}
