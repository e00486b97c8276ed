package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeAudio = "audio"
	MessageTypePoll  = "poll"
)

// Message belongs to exactly one chat. Ordering is the server-assigned (CreatedAt, Seq).
type Message struct {
	ID          string         `db:"id" json:"id"`
	Seq         int64          `db:"seq" json:"-"`
	ChatID      string         `db:"chat_id" json:"chat_id"`
	SenderID    string         `db:"sender_id" json:"sender_id"`
	Type        string         `db:"type" json:"type"`
	Text        string         `db:"text" json:"text"`
	ImageURL    string         `db:"image_url" json:"image_url,omitempty"`
	AudioURL    string         `db:"audio_url" json:"audio_url,omitempty"`
	Poll        *Poll          `db:"poll" json:"poll,omitempty"`
	ReplyTo     *ReplyTo       `db:"reply_to" json:"reply_to,omitempty"`
	Reactions   Reactions      `db:"reactions" json:"reactions,omitempty"`
	StarredBy   pq.StringArray `db:"starred_by" json:"starred_by"`
	ReadBy      pq.StringArray `db:"read_by" json:"read_by"`
	IsDeleted   bool           `db:"is_deleted" json:"is_deleted"`
	IsForwarded bool           `db:"is_forwarded" json:"is_forwarded,omitempty"`
	EditedAt    *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"timestamp"`
}

// ReplyTo is a snapshot of the quoted message taken at reply time.
type ReplyTo struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
}

func (r *ReplyTo) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return jsonValue(r)
}

func (r *ReplyTo) Scan(src any) error {
	return scanJSON(src, r)
}

// Reactions maps an emoji to the uids that reacted with it. Empty entries are never stored.
type Reactions map[string][]string

func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	return jsonValue(map[string][]string(r))
}

func (r *Reactions) Scan(src any) error {
	m := map[string][]string{}
	if err := scanJSON(src, &m); err != nil {
		return err
	}
	*r = m
	return nil
}

// Poll is embedded in a poll message.
type Poll struct {
	Question string       `json:"question"`
	Options  []PollOption `json:"options"`
	VotedBy  []string     `json:"voted_by"`
}

// PollOption holds the uids that currently vote for it.
type PollOption struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Votes []string `json:"votes"`
}

func (p *Poll) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return jsonValue(p)
}

func (p *Poll) Scan(src any) error {
	return scanJSON(src, p)
}
