package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/deeplink"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/ws"
)

const defaultGroupName = "New Group"

// OpenDirect handles POST /chats/direct.
func (h *ChatHandler) OpenDirect(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.openDirect(c, req.UserID)
}

// Invite handles POST /invite/:uid, the server side of an invite link.
func (h *ChatHandler) Invite(c *gin.Context) {
	h.openDirect(c, c.Param("uid"))
}

// openDirect reuses the direct chat containing both users or creates it.
func (h *ChatHandler) openDirect(c *gin.Context, other string) {
	ctx := c.Request.Context()
	uid := callerID(c)
	participants, err := chatops.DirectParticipants(uid, other)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.users.GetUser(ctx, other); err != nil {
		writeError(c, err)
		return
	}

	existing, err := h.chats.FindDirectChat(ctx, uid, other)
	if err == nil {
		c.JSON(http.StatusOK, existing)
		return
	}
	if !errors.Is(err, repositories.ErrChatNotFound) {
		writeError(c, err)
		return
	}

	chat, err := h.chats.CreateChat(ctx, models.Chat{Type: models.ChatTypeDirect, Participants: participants})
	observability.ObserveCommand("open_direct", err)
	if err != nil {
		writeError(c, err)
		return
	}
	h.created(c, chat)
	c.JSON(http.StatusCreated, chat)
}

// CreateGroup handles POST /chats/group.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "group_create", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultGroupName
	}
	chat, err := h.chats.CreateChat(c.Request.Context(), models.Chat{
		Type:         models.ChatTypeGroup,
		GroupName:    name,
		Participants: chatops.GroupParticipants(callerID(c), req.MemberIDs),
	})
	observability.ObserveCommand("create_group", err)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "group_create", "internal error")
		writeError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "group_create", "Group created")
	h.created(c, chat)
	c.JSON(http.StatusCreated, chat)
}

// CreateRoom handles POST /rooms: a public group anyone with the link can join.
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(c, chatops.ErrGroupName)
		return
	}

	chat, err := h.chats.CreateChat(c.Request.Context(), models.Chat{
		Type:         models.ChatTypeGroup,
		IsPublic:     true,
		GroupName:    name,
		Participants: []string{callerID(c)},
	})
	observability.ObserveCommand("create_room", err)
	if err != nil {
		writeError(c, err)
		return
	}

	h.created(c, chat)
	c.JSON(http.StatusCreated, gin.H{"chat": chat, "join_link": deeplink.JoinLink(h.baseURL, chat.ID)})
}

// JoinRoom handles POST /rooms/:chat_id/join. Joining twice is a no-op.
func (h *ChatHandler) JoinRoom(c *gin.Context) {
	ctx := c.Request.Context()
	uid := callerID(c)
	chat, err := h.chats.GetChat(ctx, c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !chat.IsPublic {
		writeError(c, errNotPublic)
		return
	}
	if chat.HasParticipant(uid) {
		c.JSON(http.StatusOK, chat)
		return
	}

	chatops.Join(&chat, uid)
	err = h.chats.SaveMembership(ctx, chat)
	observability.ObserveCommand("join_room", err)
	if err != nil {
		writeError(c, err)
		return
	}
	h.hub.Notify(ctx, ws.ChatTopics(chat)...)
	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) created(c *gin.Context, chat models.Chat) {
	ctx := c.Request.Context()
	h.hub.Notify(ctx, ws.ChatTopics(chat)...)
	err := observability.PublishEvent(ctx, observability.EventChatCreated, gin.H{
		"chat_id":      chat.ID,
		"type":         chat.Type,
		"public":       chat.IsPublic,
		"participants": chat.Participants,
	}, eventHeaders(c))
	if err != nil {
		logger.Log.Warn("chat_event_publish_failed", zap.String("chat_id", chat.ID), zap.Error(err))
	}
}
