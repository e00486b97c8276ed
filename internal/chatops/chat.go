package chatops

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"realtime-chat/internal/models"
)

// Overlay kinds on a chat. Each is a per-user set.
const (
	OverlayPin     = "pin"
	OverlayMute    = "mute"
	OverlayArchive = "archive"
)

const (
	MinNameLen   = 3
	MaxStatusLen = 50
)

var (
	ErrUnknownOverlay = errors.New("unknown overlay")
	ErrNotParticipant = errors.New("not a participant of this chat")
	ErrNameTooShort   = errors.New("name must be at least 3 characters")
	ErrStatusTooLong  = errors.New("status must be at most 50 characters")
	ErrGroupName      = errors.New("group name is required")
	ErrSelfChat       = errors.New("cannot open a chat with yourself")
)

// ToggleOverlay flips uid in the named overlay set and returns the new state.
// Archiving a pinned chat unpins it, and pinning an archived chat unarchives it,
// so a chat is never both pinned and archived for the same user.
func ToggleOverlay(chat *models.Chat, kind, uid string) (bool, error) {
	var on bool
	switch kind {
	case OverlayPin:
		chat.PinnedBy, on = Toggle(chat.PinnedBy, uid)
		if on {
			chat.ArchivedBy = Remove(chat.ArchivedBy, uid)
		}
	case OverlayMute:
		chat.MutedBy, on = Toggle(chat.MutedBy, uid)
	case OverlayArchive:
		chat.ArchivedBy, on = Toggle(chat.ArchivedBy, uid)
		if on {
			chat.PinnedBy = Remove(chat.PinnedBy, uid)
		}
	default:
		return false, ErrUnknownOverlay
	}
	return on, nil
}

// Leave removes uid from the chat and from every per-user overlay.
func Leave(chat *models.Chat, uid string) error {
	if !chat.HasParticipant(uid) {
		return ErrNotParticipant
	}
	chat.Participants = Remove(chat.Participants, uid)
	chat.PinnedBy = Remove(chat.PinnedBy, uid)
	chat.MutedBy = Remove(chat.MutedBy, uid)
	chat.ArchivedBy = Remove(chat.ArchivedBy, uid)
	if chat.Nicknames != nil {
		delete(chat.Nicknames, uid)
	}
	return nil
}

// Join adds uid to the participants of a chat.
func Join(chat *models.Chat, uid string) {
	chat.Participants = Add(chat.Participants, uid)
}

// SetNickname sets or, with a blank nickname, clears the override for target.
func SetNickname(chat *models.Chat, target, nickname string) error {
	if !chat.HasParticipant(target) {
		return ErrNotParticipant
	}
	if chat.Nicknames == nil {
		chat.Nicknames = models.Nicknames{}
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		delete(chat.Nicknames, target)
		return nil
	}
	chat.Nicknames[target] = nickname
	return nil
}

// SummaryOf builds the denormalized last-message fields for msg.
func SummaryOf(msg models.Message) models.ChatSummaryUpdate {
	return models.ChatSummaryUpdate{
		LastMessage:     Summary(msg),
		LastMessageType: msg.Type,
		LastMessageTime: msg.CreatedAt,
		LastSenderID:    msg.SenderID,
	}
}

// ApplySummary writes the denormalized last-message fields onto chat.
func ApplySummary(chat *models.Chat, s models.ChatSummaryUpdate) {
	t := s.LastMessageTime
	chat.LastMessage = s.LastMessage
	chat.LastMessageType = s.LastMessageType
	chat.LastMessageTime = &t
	chat.LastSenderID = s.LastSenderID
}

// ValidateName checks a profile display name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLen {
		return "", ErrNameTooShort
	}
	return name, nil
}

// ValidateStatus checks a custom status line. Empty clears the status.
func ValidateStatus(status string) (string, error) {
	status = strings.TrimSpace(status)
	if utf8.RuneCountInString(status) > MaxStatusLen {
		return "", ErrStatusTooLong
	}
	return status, nil
}

// DirectParticipants returns the participant pair for a direct chat.
func DirectParticipants(self, other string) ([]string, error) {
	if other == "" || other == self {
		return nil, ErrSelfChat
	}
	return []string{self, other}, nil
}

// GroupParticipants returns creator plus the distinct selected members.
func GroupParticipants(creator string, members []string) []string {
	out := Union([]string{creator}, members)
	return Remove(out, "")
}

// SortChats orders chats by last message time, newest first. Chats without a
// message sort last. The sort is stable so equal times keep their input order.
func SortChats(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chatTime(chats[i]).After(chatTime(chats[j]))
	})
}

func chatTime(c models.Chat) time.Time {
	if c.LastMessageTime == nil {
		return time.Time{}
	}
	return *c.LastMessageTime
}

// SplitArchived partitions chats into the main list and the archived list for uid.
func SplitArchived(chats []models.Chat, uid string) (active, archived []models.Chat) {
	for _, c := range chats {
		if Contains(c.ArchivedBy, uid) {
			archived = append(archived, c)
		} else {
			active = append(active, c)
		}
	}
	return active, archived
}
