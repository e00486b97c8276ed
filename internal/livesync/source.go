// Package livesync keeps local copies of the server's listener topics and
// derives what a chat client shows from them: the roster, presence, typing
// indicators and the message window of the open conversation.
package livesync

import (
	"context"
	"encoding/json"
	"errors"

	"realtime-chat/internal/models"
)

const (
	topicUsers    = "users"
	topicPresence = "presence"
)

func chatsTopic(uid string) string       { return "chats:" + uid }
func messagesTopic(chatID string) string { return "messages:" + chatID }
func typingTopic(chatID string) string   { return "typing:" + chatID }

var (
	ErrSignedOut    = errors.New("no signed-in user")
	ErrNotStarted   = errors.New("session not started")
	ErrEmptyCompose = errors.New("nothing to send")
)

// Source delivers full topic snapshots. fn runs once per snapshot, or with a
// non-nil error when the topic failed. stop detaches the listener.
type Source interface {
	Listen(ctx context.Context, topic string, fn func(data json.RawMessage, err error)) (stop func(), err error)
}

// TypingWriter broadcasts the local user's typing flag for a chat.
type TypingWriter interface {
	SetTyping(ctx context.Context, chatID string, typing bool) error
}

// Commands are the writes the conversation view issues.
type Commands interface {
	SendText(ctx context.Context, chatID, text, replyTo string) (models.Message, error)
	MarkRead(ctx context.Context, chatID, messageID string) error
}
