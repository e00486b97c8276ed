package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/storage"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

const maxPageSize = 200

// MessageHandler manages the messages of a chat.
type MessageHandler struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	files    storage.Store
	hub      Notifier
	audit    *telemetry.AuditEmitter
	pageSize int
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository, files storage.Store, hub Notifier, audit *telemetry.AuditEmitter, pageSize int) *MessageHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &MessageHandler{
		chats:    chats,
		messages: messages,
		users:    users,
		files:    files,
		hub:      hub,
		audit:    audit,
		pageSize: pageSize,
	}
}

// ListMessages returns the most recent messages of a chat in ascending order.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chat, ok := memberChat(c, h.chats, callerID(c))
	if !ok {
		return
	}
	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxPageSize)
	}

	msgs, err := h.messages.ListRecent(c.Request.Context(), chat.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SearchMessages filters the current message window by text.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	chat, ok := memberChat(c, h.chats, callerID(c))
	if !ok {
		return
	}
	msgs, err := h.messages.ListRecent(c.Request.Context(), chat.ID, h.pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	found := chatops.Search(msgs, c.Query("q"))
	if found == nil {
		found = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": found})
}

// SendText handles POST /chats/:chat_id/messages.
func (h *MessageHandler) SendText(c *gin.Context) {
	var req struct {
		Text    string `json:"text"`
		ReplyTo string `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(c, chatops.ErrEmptyText)
		return
	}

	chat, ok := h.senderChat(c)
	if !ok {
		return
	}
	msg := models.Message{Type: models.MessageTypeText, Text: text}
	if req.ReplyTo != "" {
		reply, err := h.replySnapshot(c, chat.ID, req.ReplyTo)
		if err != nil {
			writeError(c, err)
			return
		}
		msg.ReplyTo = reply
	}
	h.send(c, chat, msg)
}

// SendUpload returns the handler storing a multipart "file" of kind and
// sending it as an image or voice message.
func (h *MessageHandler) SendUpload(kind storage.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, ok := h.senderChat(c)
		if !ok {
			return
		}
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			writeError(c, errMissingFile)
			return
		}
		defer file.Close()

		upload, err := storage.ReadUpload(kind, file)
		if err != nil {
			observability.ObserveCommand("upload_"+string(kind), err)
			writeError(c, err)
			return
		}
		url, err := h.files.Put(c.Request.Context(), storage.ObjectPath(kind, chat.ID, upload.Extension), upload.ContentType, upload.Reader())
		if err != nil {
			observability.ObserveCommand("upload_"+string(kind), err)
			emitAudit(c, h.audit, "ERROR", "upload", "object store write failed")
			writeError(c, err)
			return
		}

		msg := models.Message{Type: models.MessageTypeImage, ImageURL: url}
		if kind == storage.KindAudio {
			msg = models.Message{Type: models.MessageTypeAudio, AudioURL: url}
		}
		h.send(c, chat, msg)
	}
}

// SendPoll handles POST /chats/:chat_id/polls.
func (h *MessageHandler) SendPoll(c *gin.Context) {
	var req struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	poll, err := chatops.NewPoll(req.Question, req.Options)
	if err != nil {
		writeError(c, err)
		return
	}
	chat, ok := h.senderChat(c)
	if !ok {
		return
	}
	h.send(c, chat, models.Message{Type: models.MessageTypePoll, Poll: poll})
}

// Forward copies a message of this chat into target_chat_id.
func (h *MessageHandler) Forward(c *gin.Context) {
	var req struct {
		TargetChatID string `json:"target_chat_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	uid := callerID(c)
	source, ok := h.senderChat(c)
	if !ok {
		return
	}
	src, err := h.messages.GetMessage(ctx, source.ID, c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	target, err := h.chats.GetChat(ctx, req.TargetChatID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !target.HasParticipant(uid) {
		writeError(c, chatops.ErrNotParticipant)
		return
	}

	fwd, err := chatops.Forward(src, target.ID, uid)
	if err != nil {
		writeError(c, err)
		return
	}
	h.send(c, target, fwd)
}

// send appends msg, then writes the chat summary. The two writes are not
// atomic; a failed summary write leaves the message in place.
func (h *MessageHandler) send(c *gin.Context, chat models.Chat, msg models.Message) {
	ctx := c.Request.Context()
	uid := callerID(c)
	msg.ChatID = chat.ID
	msg.SenderID = uid
	msg.ReadBy = []string{uid}
	msg.StarredBy = []string{}
	msg.Reactions = models.Reactions{}

	command := "send_" + msg.Type
	if msg.IsForwarded {
		command = "forward"
	}
	if !chatops.HasContent(msg) {
		observability.ObserveCommand(command, chatops.ErrNothingToSend)
		writeError(c, chatops.ErrNothingToSend)
		return
	}

	created, err := h.messages.CreateMessage(ctx, msg)
	observability.ObserveCommand(command, err)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.chats.UpdateSummary(ctx, chat.ID, chatops.SummaryOf(created)); err != nil {
		logger.Log.Warn("chat_summary_failed", zap.String("chat_id", chat.ID), zap.Error(err))
	}

	topics := append(ws.ChatTopics(chat), ws.MessagesTopic(chat.ID))
	h.hub.Notify(ctx, topics...)

	err = observability.PublishEvent(ctx, observability.EventMessageSent, gin.H{
		"chat_id":    chat.ID,
		"message_id": created.ID,
		"sender_id":  uid,
		"type":       created.Type,
		"forwarded":  created.IsForwarded,
	}, eventHeaders(c))
	if err != nil {
		logger.Log.Debug("message_event_publish_failed", zap.String("message_id", created.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, created)
}

// senderChat loads the chat for a caller who is about to write into it.
func (h *MessageHandler) senderChat(c *gin.Context) (models.Chat, bool) {
	uid := callerID(c)
	if err := ensureNotBanned(c.Request.Context(), h.users, uid); err != nil {
		writeError(c, err)
		return models.Chat{}, false
	}
	return memberChat(c, h.chats, uid)
}

func (h *MessageHandler) replySnapshot(c *gin.Context, chatID, messageID string) (*models.ReplyTo, error) {
	ctx := c.Request.Context()
	orig, err := h.messages.GetMessage(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}
	if orig.IsDeleted {
		return nil, chatops.ErrMessageDeleted
	}
	var name string
	if sender, err := h.users.GetUser(ctx, orig.SenderID); err == nil {
		name = sender.Name
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, err
	}
	return chatops.ReplySnapshot(orig, name), nil
}

// mutate runs fn against the addressed message and writes the whole message
// back. It reports whether a write happened.
func (h *MessageHandler) mutate(c *gin.Context, command string, fn func(msg *models.Message, uid string) (changed bool, err error)) (models.Message, bool) {
	ctx := c.Request.Context()
	uid := callerID(c)
	chat, ok := memberChat(c, h.chats, uid)
	if !ok {
		return models.Message{}, false
	}
	msg, err := h.messages.GetMessage(ctx, chat.ID, c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return models.Message{}, false
	}

	changed, err := fn(&msg, uid)
	if err == nil && changed {
		err = h.messages.SaveMessage(ctx, msg)
	}
	observability.ObserveCommand(command, err)
	if err != nil {
		writeError(c, err)
		return models.Message{}, false
	}
	if changed {
		h.hub.Notify(ctx, ws.MessagesTopic(chat.ID))
	}
	c.JSON(http.StatusOK, msg)
	return msg, changed
}

// Edit handles PATCH /chats/:chat_id/messages/:message_id.
func (h *MessageHandler) Edit(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, "edit", func(msg *models.Message, uid string) (bool, error) {
		return true, chatops.Edit(msg, uid, req.Text, time.Now().UTC())
	})
}

// Delete soft-deletes a message. Only the sender may delete.
func (h *MessageHandler) Delete(c *gin.Context) {
	msg, deleted := h.mutate(c, "delete", func(msg *models.Message, uid string) (bool, error) {
		if msg.IsDeleted && msg.SenderID == uid {
			return false, nil
		}
		return true, chatops.SoftDelete(msg, uid)
	})
	if !deleted {
		return
	}
	err := observability.PublishEvent(c.Request.Context(), observability.EventMessageDeleted, gin.H{
		"chat_id":    msg.ChatID,
		"message_id": msg.ID,
	}, eventHeaders(c))
	if err != nil {
		logger.Log.Debug("message_event_publish_failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// React toggles the caller's reaction with emoji.
func (h *MessageHandler) React(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, "react", func(msg *models.Message, uid string) (bool, error) {
		return true, chatops.React(msg, req.Emoji, uid)
	})
}

// Star toggles the caller in the message's starred set.
func (h *MessageHandler) Star(c *gin.Context) {
	h.mutate(c, "star", func(msg *models.Message, uid string) (bool, error) {
		chatops.ToggleStar(msg, uid)
		return true, nil
	})
}

// Vote moves the caller's poll vote to option_id.
func (h *MessageHandler) Vote(c *gin.Context) {
	var req struct {
		OptionID string `json:"option_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, "vote", func(msg *models.Message, uid string) (bool, error) {
		return true, chatops.Vote(msg, req.OptionID, uid)
	})
}

// Read records a read receipt. Repeating it writes nothing.
func (h *MessageHandler) Read(c *gin.Context) {
	h.mutate(c, "read", func(msg *models.Message, uid string) (bool, error) {
		return chatops.MarkRead(msg, uid), nil
	})
}

// Starred lists the caller's starred messages across chats, newest first.
func (h *MessageHandler) Starred(c *gin.Context) {
	msgs, err := h.messages.ListStarred(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
