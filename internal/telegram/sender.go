package telegram

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	errs "github.com/tpmb/tpmb2/internal/errors"
	"github.com/tpmb/tpmb2/internal/session"
)

// Telegram allows roughly 30 messages per second per bot.
const (
	defaultRate  = 25
	defaultBurst = 5
)

// MessageAPI is the part of the Bot API used for outbound messages.
type MessageAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Sender delivers broadcasts to groups and relays end-user messages to the
// operator. All outbound traffic shares one rate limiter.
type Sender struct {
	api     MessageAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewSender(api MessageAPI, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sender{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		logger:  logger.With("component", "telegram_sender"),
	}
}

// Send posts text, Telegram HTML, to chatID.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	return s.send(ctx, chatID, text)
}

// RequestChat tells the operator that from wants to chat.
func (s *Sender) RequestChat(ctx context.Context, operatorID int64, from session.User) error {
	text := fmt.Sprintf("<b>Chat request</b>\n\n%s (id <code>%d</code>) opened a chat with you. Their messages will follow.",
		mention(from), from.ID)
	return s.send(ctx, operatorID, text)
}

// Forward relays an end-user message to the operator. The user text is
// escaped, never interpreted as markup.
func (s *Sender) Forward(ctx context.Context, operatorID int64, from session.User, text string) error {
	body := fmt.Sprintf("<b>Message from</b> %s (id <code>%d</code>):\n\n%s",
		mention(from), from.ID, html.EscapeString(text))
	return s.send(ctx, operatorID, body)
}

func (s *Sender) send(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errs.NewTransportError(chatID, fmt.Sprintf("send to %d aborted", chatID), err)
	}

	_, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		s.logger.DebugContext(ctx, "Telegram send failed", "chat_id", chatID, "error", err)
		return errs.NewTransportError(chatID, fmt.Sprintf("send to %d failed", chatID), err)
	}
	return nil
}

func mention(u session.User) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(u.Name))
}
