package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tpmb/tpmb2/internal/router"
)

// NewTextHandler returns the handler for every inbound text message:
// operator commands and end-user menu input alike.
func NewTextHandler(deps HandlerDeps) bot.HandlerFunc {
	return textHandler{deps}.Handle
}

type textHandler struct {
	deps HandlerDeps
}

func (h textHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "text")

	msg := update.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		log.DebugContext(ctx, "Ignoring update without text or sender", "update_id", update.ID)
		return
	}

	private := msg.Chat.Type == models.ChatTypePrivate
	res, err := h.deps.Core.HandleText(ctx, router.Message{
		From:  userFrom(msg.From),
		Text:  msg.Text,
		Group: !private,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to handle message", "error", err, "chat_id", msg.Chat.ID)
		return
	}

	params := reply(msg.Chat.ID, private, res)
	if params == nil {
		return
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", msg.Chat.ID, "command", res.Command)
	}
}

// reply builds the response to res. Menu views are only shown in private
// chats.
func reply(chatID int64, private bool, res router.Result) *bot.SendMessageParams {
	switch {
	case res.Ignored:
		return nil
	case res.Text != "":
		return &bot.SendMessageParams{ChatID: chatID, Text: res.Text, ParseMode: models.ParseModeHTML}
	case res.View != nil && private:
		return &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        res.View.Text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: Keyboard(*res.View),
		}
	default:
		return nil
	}
}
