package models

import "time"

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Presence is the realtime record kept per uid.
type Presence struct {
	State       string    `json:"state"`
	LastChanged time.Time `json:"last_changed"`
}

// Online reports whether the record says online.
func (p Presence) Online() bool {
	return p.State == PresenceOnline
}

// Typing is the ephemeral per-chat-per-uid flag.
type Typing struct {
	IsTyping bool      `json:"is_typing"`
	At       time.Time `json:"at"`
}
