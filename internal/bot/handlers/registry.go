package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler describes one update handler and the middleware wrapped
// around it.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllHandlers returns every update handler keyed by name. Both match
// every update of their type; routing happens in the command router.
func RegisterAllHandlers(deps HandlerDeps) map[string]RegisteredHandler {
	return map[string]RegisteredHandler{
		"text": {
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     "",
			Handler:     NewTextHandler(deps),
			Middleware:  []tgbot.Middleware{CommandsOnlyInGroups(deps)},
			MatchType:   tgbot.MatchTypePrefix,
		},
		"menu_callback": {
			HandlerType: tgbot.HandlerTypeCallbackQueryData,
			Pattern:     "",
			Handler:     NewCallbackHandler(deps),
			MatchType:   tgbot.MatchTypePrefix,
		},
	}
}
