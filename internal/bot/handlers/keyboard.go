package handlers

import (
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/tpmb/tpmb2/internal/session"
)

// Keyboard renders the buttons of a menu view as an inline keyboard, or nil
// when the view has none.
func Keyboard(v session.View) models.ReplyMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(v.Buttons))
	for _, row := range v.Buttons {
		if len(row) == 0 {
			continue
		}
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: string(btn.Action),
			})
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func userFrom(u *models.User) session.User {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return session.User{ID: u.ID, Name: name}
}
