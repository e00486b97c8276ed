// Package realtime is the presence and typing key-value store. Records are
// small JSON values keyed by uid; every write is announced on a change feed so
// the listener hub can push fresh snapshots.
package realtime

import (
	"context"
	"time"

	"realtime-chat/internal/models"
)

// Change kinds.
const (
	ChangePresence = "presence"
	ChangeTyping   = "typing"
)

// Change announces that a path was written or removed.
type Change struct {
	Kind   string `json:"kind"`
	ChatID string `json:"chat_id,omitempty"`
	UID    string `json:"uid"`
}

// Store is the realtime key-value boundary.
type Store interface {
	SetPresence(ctx context.Context, uid string, p models.Presence) error
	Presence(ctx context.Context) (map[string]models.Presence, error)
	SetTyping(ctx context.Context, chatID, uid string, at time.Time) error
	// ClearTyping removes the record. Removing an absent record is not an error.
	ClearTyping(ctx context.Context, chatID, uid string) error
	Typing(ctx context.Context, chatID string) (map[string]models.Typing, error)
	// SweepTyping removes typing records written before cutoff and returns how many went.
	SweepTyping(ctx context.Context, cutoff time.Time) (int, error)
	// Watch delivers changes until ctx is done.
	Watch(ctx context.Context) <-chan Change
	Close() error
}

// Online is a convenience for the presence record written on connect.
func Online(now time.Time) models.Presence {
	return models.Presence{State: models.PresenceOnline, LastChanged: now}
}

// Offline is the record written by the disconnect hook.
func Offline(now time.Time) models.Presence {
	return models.Presence{State: models.PresenceOffline, LastChanged: now}
}
