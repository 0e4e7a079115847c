// Package handlers contains the Telegram update handlers, their middleware
// and the mapping of menu views to inline keyboards.
package handlers

import (
	"context"
	"log/slog"

	"github.com/tpmb/tpmb2/internal/router"
	"github.com/tpmb/tpmb2/internal/session"
)

// Core routes inbound events through the bot event loop.
type Core interface {
	HandleText(ctx context.Context, msg router.Message) (router.Result, error)
	HandleAction(ctx context.Context, user session.User, data string) (router.Result, error)
}

// HandlerDeps provides dependencies for Telegram update handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Core   Core
}
