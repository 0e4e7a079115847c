// Package model contains the core domain entities of the broadcast bot.
// These models are shared between the scheduler, the router and the store
// and are independent of the Telegram transport.
package model

import "time"

// Group is a broadcast destination. IDs are Telegram chat identifiers;
// negative values denote group-type chats.
type Group struct {
	ID      int64
	AddedAt time.Time
}
