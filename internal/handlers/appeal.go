package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

// AppealHandler accepts ban appeals from banned users.
type AppealHandler struct {
	appeals repositories.AppealRepository
	users   repositories.UserRepository
	hub     Notifier
	audit   *telemetry.AuditEmitter
}

// NewAppealHandler builds an AppealHandler.
func NewAppealHandler(appeals repositories.AppealRepository, users repositories.UserRepository, hub Notifier, audit *telemetry.AuditEmitter) *AppealHandler {
	return &AppealHandler{appeals: appeals, users: users, hub: hub, audit: audit}
}

// FileAppeal handles POST /appeals.
func (h *AppealHandler) FileAppeal(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		writeError(c, errEmptyMessage)
		return
	}

	ctx := c.Request.Context()
	id := middleware.Identity(c)
	user, err := h.users.GetUser(ctx, id.UID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !user.IsBanned {
		writeError(c, errNotBanned)
		return
	}

	email := user.Email
	if email == "" {
		email = id.Email
	}
	appeal, err := h.appeals.CreateAppeal(ctx, models.BanAppeal{UserID: id.UID, UserEmail: email, Message: text})
	observability.ObserveCommand("appeal", err)
	if err != nil {
		writeError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "appeal_filed", "Ban appeal filed")
	h.hub.Notify(ctx, ws.TopicAppeals)
	if err := observability.PublishEvent(ctx, observability.EventAppealFiled, gin.H{
		"appeal_id": appeal.ID,
		"user_id":   appeal.UserID,
	}, eventHeaders(c)); err != nil {
		logger.Log.Warn("appeal_event_publish_failed", zap.String("appeal_id", appeal.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, appeal)
}
