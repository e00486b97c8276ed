package chatops

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"realtime-chat/internal/models"
)

var (
	ErrNotSender      = errors.New("only the sender may change this message")
	ErrMessageDeleted = errors.New("message is deleted")
	ErrEmptyText      = errors.New("text is required")
	ErrNotEditable    = errors.New("only text messages can be edited")
	ErrEmptyEmoji     = errors.New("emoji is required")
	ErrNotPoll        = errors.New("message is not a poll")
	ErrUnknownOption  = errors.New("unknown poll option")
	ErrPollQuestion   = errors.New("poll question is required")
	ErrPollOptions    = errors.New("poll needs at least 2 options")
	ErrPollTooMany    = errors.New("poll allows at most 10 options")
	ErrNothingToSend  = errors.New("message has no content")
)

const (
	// MaxPollOptions mirrors the composer limit.
	MaxPollOptions  = 10
	replySnippetLen = 100
)

// ToggleReaction flips uid's membership in the voter set of emoji. An emoji whose
// set becomes empty is dropped from the map. The input map is not modified.
func ToggleReaction(reactions models.Reactions, emoji, uid string) models.Reactions {
	out := models.Reactions{}
	for k, v := range reactions {
		if len(v) > 0 {
			out[k] = clone(v)
		}
	}
	voters, _ := Toggle(out[emoji], uid)
	if len(voters) == 0 {
		delete(out, emoji)
	} else {
		out[emoji] = voters
	}
	return out
}

// React applies ToggleReaction to msg. Deleted messages cannot gain reactions.
func React(msg *models.Message, emoji, uid string) error {
	if msg.IsDeleted {
		return ErrMessageDeleted
	}
	if strings.TrimSpace(emoji) == "" {
		return ErrEmptyEmoji
	}
	msg.Reactions = ToggleReaction(msg.Reactions, emoji, uid)
	return nil
}

// ToggleStar flips uid's membership in msg.StarredBy and returns the new state.
func ToggleStar(msg *models.Message, uid string) bool {
	var starred bool
	msg.StarredBy, starred = Toggle(msg.StarredBy, uid)
	return starred
}

// MarkRead adds uid to msg.ReadBy. It reports false when uid was already present,
// in which case nothing needs to be written.
func MarkRead(msg *models.Message, uid string) bool {
	if Contains(msg.ReadBy, uid) {
		return false
	}
	msg.ReadBy = Add(msg.ReadBy, uid)
	return true
}

// Edit replaces the text of a text message. ReadBy is left untouched.
func Edit(msg *models.Message, uid, text string, now time.Time) error {
	if msg.SenderID != uid {
		return ErrNotSender
	}
	if msg.IsDeleted {
		return ErrMessageDeleted
	}
	if msg.Type != models.MessageTypeText {
		return ErrNotEditable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	msg.Text = text
	msg.EditedAt = &now
	return nil
}

// SoftDelete clears the payload and reactions and sets the tombstone. ID, ChatID,
// SenderID and CreatedAt survive so ordering and audit trail remain.
func SoftDelete(msg *models.Message, uid string) error {
	if msg.SenderID != uid {
		return ErrNotSender
	}
	msg.Text = ""
	msg.ImageURL = ""
	msg.AudioURL = ""
	msg.Poll = nil
	msg.Reactions = models.Reactions{}
	msg.IsDeleted = true
	return nil
}

// NewPoll builds a poll from the composer input. Blank options are ignored.
func NewPoll(question string, options []string) (*models.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrPollQuestion
	}
	var valid []string
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			valid = append(valid, o)
		}
	}
	if len(valid) < 2 {
		return nil, ErrPollOptions
	}
	if len(valid) > MaxPollOptions {
		return nil, ErrPollTooMany
	}
	poll := &models.Poll{Question: question, VotedBy: []string{}}
	for i, o := range valid {
		poll.Options = append(poll.Options, models.PollOption{ID: optionID(i), Text: o, Votes: []string{}})
	}
	return poll, nil
}

func optionID(i int) string {
	return "opt_" + strconv.Itoa(i)
}

// Vote retracts uid from every option, adds it to optionID and recomputes VotedBy
// as the union of all option vote sets.
func Vote(msg *models.Message, optionID, uid string) error {
	if msg.IsDeleted {
		return ErrMessageDeleted
	}
	if msg.Type != models.MessageTypePoll || msg.Poll == nil {
		return ErrNotPoll
	}
	idx := -1
	for i, o := range msg.Poll.Options {
		if o.ID == optionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownOption
	}

	options := make([]models.PollOption, len(msg.Poll.Options))
	sets := make([][]string, len(options))
	for i, o := range msg.Poll.Options {
		o.Votes = Remove(o.Votes, uid)
		if i == idx {
			o.Votes = Add(o.Votes, uid)
		}
		options[i] = o
		sets[i] = o.Votes
	}
	msg.Poll = &models.Poll{
		Question: msg.Poll.Question,
		Options:  options,
		VotedBy:  Union(sets...),
	}
	return nil
}

// ReplySnapshot captures the quoted message at reply time. The snapshot is not
// kept in sync with later edits or deletes of the original.
func ReplySnapshot(orig models.Message, senderName string) *models.ReplyTo {
	text := orig.Text
	if utf8.RuneCountInString(text) > replySnippetLen {
		text = string([]rune(text)[:replySnippetLen])
	}
	if senderName == "" {
		senderName = "User"
	}
	return &models.ReplyTo{ID: orig.ID, Text: text, SenderID: orig.SenderID, SenderName: senderName}
}

// Forward copies the content of src into a new message for target. Reactions,
// read and star state are not carried over. Deleted messages cannot be forwarded.
func Forward(src models.Message, targetChatID, uid string) (models.Message, error) {
	if src.IsDeleted {
		return models.Message{}, ErrMessageDeleted
	}
	fwd := models.Message{
		ChatID:      targetChatID,
		SenderID:    uid,
		Type:        src.Type,
		Text:        src.Text,
		ImageURL:    src.ImageURL,
		AudioURL:    src.AudioURL,
		IsForwarded: true,
		ReadBy:      []string{uid},
		StarredBy:   []string{},
		Reactions:   models.Reactions{},
	}
	if src.Poll != nil {
		poll, err := NewPoll(src.Poll.Question, pollTexts(src.Poll))
		if err != nil {
			return models.Message{}, err
		}
		fwd.Poll = poll
	}
	if !HasContent(fwd) {
		return models.Message{}, ErrNothingToSend
	}
	return fwd, nil
}

func pollTexts(p *models.Poll) []string {
	out := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		out = append(out, o.Text)
	}
	return out
}

// HasContent reports whether msg carries exactly the payload its type promises.
func HasContent(msg models.Message) bool {
	switch msg.Type {
	case models.MessageTypeText:
		return strings.TrimSpace(msg.Text) != ""
	case models.MessageTypeImage:
		return msg.ImageURL != ""
	case models.MessageTypeAudio:
		return msg.AudioURL != ""
	case models.MessageTypePoll:
		return msg.Poll != nil
	}
	return false
}

// Summary is the denormalized last-message text written onto the chat.
func Summary(msg models.Message) string {
	if msg.IsForwarded {
		return "Forwarded message"
	}
	switch msg.Type {
	case models.MessageTypeImage:
		return "📷 Photo"
	case models.MessageTypeAudio:
		return "🎤 Voice message"
	case models.MessageTypePoll:
		if msg.Poll != nil {
			return "📊 Poll: " + msg.Poll.Question
		}
		return "📊 Poll"
	}
	return msg.Text
}

// Search returns the messages whose text contains q, case-insensitively.
// Deleted messages never match.
func Search(msgs []models.Message, q string) []models.Message {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return msgs
	}
	var out []models.Message
	for _, m := range msgs {
		if m.IsDeleted {
			continue
		}
		text := m.Text
		if m.Poll != nil {
			text += " " + m.Poll.Question
		}
		if strings.Contains(strings.ToLower(text), q) {
			out = append(out, m)
		}
	}
	return out
}
