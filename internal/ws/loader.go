package ws

import (
	"context"
	"errors"
	"fmt"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/repositories"
)

// Loader produces the snapshot of a topic and decides who may read it.
type Loader interface {
	Authorize(ctx context.Context, id auth.Identity, topic string) error
	Load(ctx context.Context, topic string) (any, error)
}

// SnapshotLoader reads topics from the document store and the realtime store.
type SnapshotLoader struct {
	Users    repositories.UserRepository
	Chats    repositories.ChatRepository
	Messages repositories.MessageRepository
	Appeals  repositories.AppealRepository
	Realtime realtime.Store
	PageSize int
}

func (l *SnapshotLoader) Authorize(ctx context.Context, id auth.Identity, topic string) error {
	kind, key, err := parseTopic(topic)
	if err != nil {
		return err
	}
	switch kind {
	case TopicUsers, TopicPresence:
		return nil
	case TopicAppeals, TopicAdminChats:
		if !id.Admin {
			return ErrForbidden
		}
		return nil
	case "chats":
		if key != id.UID {
			return ErrForbidden
		}
		return nil
	case "messages", "typing":
		chat, err := l.Chats.GetChat(ctx, key)
		if errors.Is(err, repositories.ErrChatNotFound) {
			return ErrForbidden
		}
		if err != nil {
			return err
		}
		if chat.HasParticipant(id.UID) || (kind == "messages" && id.Admin) {
			return nil
		}
		return ErrForbidden
	}
	return ErrUnknownTopic
}

func (l *SnapshotLoader) Load(ctx context.Context, topic string) (any, error) {
	kind, key, err := parseTopic(topic)
	if err != nil {
		return nil, err
	}
	switch kind {
	case TopicUsers:
		return l.Users.ListUsers(ctx)
	case TopicPresence:
		return l.Realtime.Presence(ctx)
	case TopicAppeals:
		return l.Appeals.ListAppeals(ctx)
	case TopicAdminChats:
		return l.Chats.ListAllChats(ctx)
	case "chats":
		return l.Chats.ListChatsForUser(ctx, key)
	case "messages":
		return l.Messages.ListRecent(ctx, key, l.PageSize)
	case "typing":
		return l.Realtime.Typing(ctx, key)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}
