package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// CommandsOnlyInGroups drops non-command text posted in group chats, so
// ordinary group conversation never reaches the user menu.
func CommandsOnlyInGroups(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			msg := update.Message
			if msg == nil || msg.Chat.Type == models.ChatTypePrivate {
				next(ctx, bot, update)
				return
			}

			if !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
				deps.Logger.DebugContext(ctx, "Ignoring group chatter", "middleware", "CommandsOnlyInGroups", "chat_id", msg.Chat.ID)
				return
			}
			next(ctx, bot, update)
		}
	}
}
