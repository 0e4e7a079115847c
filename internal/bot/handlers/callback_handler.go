package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewCallbackHandler returns the handler for inline menu button presses. The
// menu message is edited in place when it is still accessible.
func NewCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return callbackHandler{deps}.Handle
}

type callbackHandler struct {
	deps HandlerDeps
}

func (h callbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "callback")

	q := update.CallbackQuery
	if q == nil {
		return
	}

	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: q.ID}); err != nil {
		log.WarnContext(ctx, "Failed to answer callback query", "error", err, "user_id", q.From.ID)
	}

	res, err := h.deps.Core.HandleAction(ctx, userFrom(&q.From), q.Data)
	if err != nil {
		log.ErrorContext(ctx, "Failed to handle menu action", "error", err, "user_id", q.From.ID)
		return
	}
	if res.View == nil {
		return
	}

	if msg := q.Message.Message; msg != nil {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      msg.Chat.ID,
			MessageID:   msg.ID,
			Text:        res.View.Text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: Keyboard(*res.View),
		})
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return
		}
		log.WarnContext(ctx, "Failed to edit menu message, sending a new one", "error", err, "chat_id", msg.Chat.ID)
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      q.From.ID,
		Text:        res.View.Text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: Keyboard(*res.View),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send menu", "error", err, "user_id", q.From.ID)
	}
}
