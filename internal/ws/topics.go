package ws

import (
	"errors"
	"strings"

	"realtime-chat/internal/models"
)

// Topics a listener can subscribe to. Every delivery is the full current set.
const (
	TopicUsers      = "users"
	TopicPresence   = "presence"
	TopicAppeals    = "appeals"
	TopicAdminChats = "admin:chats"

	prefixChats    = "chats:"
	prefixMessages = "messages:"
	prefixTyping   = "typing:"
)

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrForbidden    = errors.New("not allowed to subscribe to this topic")
)

// ChatsTopic lists the chats containing uid.
func ChatsTopic(uid string) string { return prefixChats + uid }

// MessagesTopic is the recent message window of one chat.
func MessagesTopic(chatID string) string { return prefixMessages + chatID }

// TypingTopic is the typing map of one chat.
func TypingTopic(chatID string) string { return prefixTyping + chatID }

// TopicKind returns the topic without its id, used as a metric label.
func TopicKind(topic string) string {
	if i := strings.IndexByte(topic, ':'); i > 0 && topic != TopicAdminChats {
		return topic[:i]
	}
	return topic
}

// parseTopic splits a topic into kind and id. Fixed topics have an empty id.
func parseTopic(topic string) (kind, id string, err error) {
	switch topic {
	case TopicUsers, TopicPresence, TopicAppeals, TopicAdminChats:
		return topic, "", nil
	}
	for _, p := range []string{prefixChats, prefixMessages, prefixTyping} {
		if strings.HasPrefix(topic, p) {
			id = strings.TrimPrefix(topic, p)
			if id == "" {
				return "", "", ErrUnknownTopic
			}
			return strings.TrimSuffix(p, ":"), id, nil
		}
	}
	return "", "", ErrUnknownTopic
}

// ChatTopics are the topics to refresh after a write to chat: every
// participant's chat list and the admin list.
func ChatTopics(chat models.Chat, extra ...string) []string {
	out := make([]string, 0, len(chat.Participants)+len(extra)+1)
	for _, p := range chat.Participants {
		out = append(out, ChatsTopic(p))
	}
	for _, uid := range extra {
		out = append(out, ChatsTopic(uid))
	}
	return append(out, TopicAdminChats)
}
