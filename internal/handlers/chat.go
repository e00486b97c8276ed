package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

// ChatHandler manages chat documents: creation, membership and per-user overlays.
type ChatHandler struct {
	chats   repositories.ChatRepository
	users   repositories.UserRepository
	hub     Notifier
	audit   *telemetry.AuditEmitter
	baseURL string
}

// NewChatHandler builds a ChatHandler. baseURL prefixes generated join links.
func NewChatHandler(chats repositories.ChatRepository, users repositories.UserRepository, hub Notifier, audit *telemetry.AuditEmitter, baseURL string) *ChatHandler {
	return &ChatHandler{
		chats:   chats,
		users:   users,
		hub:     hub,
		audit:   audit,
		baseURL: baseURL,
	}
}

// ListChats returns the caller's chats, newest activity first, split into the
// main list and the archived list.
func (h *ChatHandler) ListChats(c *gin.Context) {
	uid := callerID(c)
	chats, err := h.chats.ListChatsForUser(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	chatops.SortChats(chats)
	active, archived := chatops.SplitArchived(chats, uid)
	if active == nil {
		active = []models.Chat{}
	}
	if archived == nil {
		archived = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": active, "archived": archived})
}

// Overlay returns the handler toggling the caller in one overlay set.
func (h *ChatHandler) Overlay(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := callerID(c)
		chat, ok := memberChat(c, h.chats, uid)
		if !ok {
			return
		}
		on, err := chatops.ToggleOverlay(&chat, kind, uid)
		if err == nil {
			err = h.chats.SaveMembership(c.Request.Context(), chat)
		}
		observability.ObserveCommand(kind, err)
		if err != nil {
			writeError(c, err)
			return
		}
		h.hub.Notify(c.Request.Context(), ws.ChatsTopic(uid), ws.TopicAdminChats)
		c.JSON(http.StatusOK, gin.H{kind: on})
	}
}

// SetNickname handles PUT /chats/:chat_id/nickname.
func (h *ChatHandler) SetNickname(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Nickname string `json:"nickname"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, ok := memberChat(c, h.chats, callerID(c))
	if !ok {
		return
	}
	err := chatops.SetNickname(&chat, req.UserID, req.Nickname)
	if err == nil {
		err = h.chats.SaveMembership(c.Request.Context(), chat)
	}
	observability.ObserveCommand("nickname", err)
	if err != nil {
		writeError(c, err)
		return
	}
	h.hub.Notify(c.Request.Context(), ws.ChatTopics(chat)...)
	c.JSON(http.StatusOK, chat)
}

// SetTheme handles PUT /chats/:chat_id/theme.
func (h *ChatHandler) SetTheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, ok := memberChat(c, h.chats, callerID(c))
	if !ok {
		return
	}
	err := h.chats.SetTheme(c.Request.Context(), chat.ID, req.Theme)
	observability.ObserveCommand("theme", err)
	if err != nil {
		writeError(c, err)
		return
	}
	h.hub.Notify(c.Request.Context(), ws.ChatTopics(chat)...)
	c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
}

// Leave removes the caller from the chat and from every overlay set. The
// caller's message and typing subscriptions for the chat are dropped.
func (h *ChatHandler) Leave(c *gin.Context) {
	uid := callerID(c)
	chat, ok := memberChat(c, h.chats, uid)
	if !ok {
		return
	}
	err := chatops.Leave(&chat, uid)
	if err == nil {
		err = h.chats.SaveMembership(c.Request.Context(), chat)
	}
	observability.ObserveCommand("leave", err)
	if err != nil {
		writeError(c, err)
		return
	}

	h.hub.Evict(ws.MessagesTopic(chat.ID), uid)
	h.hub.Evict(ws.TypingTopic(chat.ID), uid)
	h.hub.Notify(c.Request.Context(), ws.ChatTopics(chat, uid)...)
	c.Status(http.StatusNoContent)
}

// DeleteChat removes the chat and all of its messages for everyone.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	uid := callerID(c)
	chat, ok := memberChat(c, h.chats, uid)
	if !ok {
		return
	}
	err := h.chats.DeleteChat(c.Request.Context(), chat.ID)
	observability.ObserveCommand("delete_chat", err)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "chat_delete", "chat delete failed")
		writeError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "chat_delete", "Chat "+chat.ID+" deleted")
	notifyChatDeleted(c, h.hub, chat)
	c.Status(http.StatusNoContent)
}

// notifyChatDeleted refreshes every member's list. Subscribers of the chat's
// own topics get a final empty snapshot and are then dropped.
func notifyChatDeleted(c *gin.Context, hub Notifier, chat models.Chat) {
	hub.Notify(c.Request.Context(), append(ws.ChatTopics(chat), ws.MessagesTopic(chat.ID), ws.TypingTopic(chat.ID))...)
	for _, uid := range chat.Participants {
		hub.Evict(ws.MessagesTopic(chat.ID), uid)
		hub.Evict(ws.TypingTopic(chat.ID), uid)
	}
}
