package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

const (
	ChatTypeDirect = "direct"
	ChatTypeGroup  = "group"
)

// Chat is a direct or group conversation. Public rooms are groups with IsPublic set.
type Chat struct {
	ID              string         `db:"id" json:"id"`
	Type            string         `db:"type" json:"type"`
	IsPublic        bool           `db:"is_public" json:"public"`
	GroupName       string         `db:"group_name" json:"group_name,omitempty"`
	GroupAvatar     string         `db:"group_avatar" json:"group_avatar,omitempty"`
	Participants    pq.StringArray `db:"participants" json:"participants"`
	LastMessage     string         `db:"last_message" json:"last_message,omitempty"`
	LastMessageType string         `db:"last_message_type" json:"last_message_type,omitempty"`
	LastMessageTime *time.Time     `db:"last_message_time" json:"last_message_time,omitempty"`
	LastSenderID    string         `db:"last_sender_id" json:"last_sender_id,omitempty"`
	PinnedBy        pq.StringArray `db:"pinned_by" json:"pinned_by"`
	MutedBy         pq.StringArray `db:"muted_by" json:"muted_by"`
	ArchivedBy      pq.StringArray `db:"archived_by" json:"archived_by"`
	Nicknames       Nicknames      `db:"nicknames" json:"nicknames,omitempty"`
	Theme           string         `db:"theme" json:"theme,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether uid is a member of the chat.
func (c Chat) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Partner returns the first participant that is not self. Only meaningful for direct chats.
func (c Chat) Partner(self string) string {
	for _, p := range c.Participants {
		if p != self {
			return p
		}
	}
	return ""
}

// Nicknames maps uid to a per-chat display override.
type Nicknames map[string]string

func (n Nicknames) Value() (driver.Value, error) {
	if n == nil {
		return "{}", nil
	}
	return jsonValue(map[string]string(n))
}

func (n *Nicknames) Scan(src any) error {
	m := map[string]string{}
	if err := scanJSON(src, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// ChatSummaryUpdate is the denormalized last-message summary written after a send.
type ChatSummaryUpdate struct {
	LastMessage     string
	LastMessageType string
	LastMessageTime time.Time
	LastSenderID    string
}
