package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

const inspectLimit = 50

// Publisher sends commands to other services over the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AdminHandler serves the moderation surface. Every route sits behind
// middleware.RequireAdmin.
type AdminHandler struct {
	users     repositories.UserRepository
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	appeals   repositories.AppealRepository
	presence  realtime.Store
	hub       Notifier
	publisher Publisher
	audit     *telemetry.AuditEmitter
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(
	users repositories.UserRepository,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	appeals repositories.AppealRepository,
	presence realtime.Store,
	hub Notifier,
	publisher Publisher,
	audit *telemetry.AuditEmitter,
) *AdminHandler {
	return &AdminHandler{
		users:     users,
		chats:     chats,
		messages:  messages,
		appeals:   appeals,
		presence:  presence,
		hub:       hub,
		publisher: publisher,
		audit:     audit,
	}
}

// Stats returns the dashboard counters.
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		stats models.AdminStats
		err   error
	)
	if stats.TotalUsers, err = h.users.CountUsers(ctx); err != nil {
		writeError(c, err)
		return
	}
	if stats.TotalChats, err = h.chats.CountChats(ctx); err != nil {
		writeError(c, err)
		return
	}
	if stats.PendingAppeals, err = h.appeals.CountPending(ctx); err != nil {
		writeError(c, err)
		return
	}
	presence, err := h.presence.Presence(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, p := range presence {
		if p.Online() {
			stats.OnlineUsers++
		}
	}
	c.JSON(http.StatusOK, stats)
}

// ListUsers handles GET /admin/users?q=&status=&sort=&dir=.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, ok := h.queryUsers(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ExportUsers writes the same filtered list as CSV.
func (h *AdminHandler) ExportUsers(c *gin.Context) {
	users, ok := h.queryUsers(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", `attachment; filename="users_export.csv"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"User ID", "Name", "Email", "Mobile", "Status"})
	for _, u := range users {
		_ = w.Write([]string{u.UID, u.Name, u.Email, u.Mobile, userStatus(u)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Log.Warn("csv_export_failed", zap.Error(err))
	}
}

func (h *AdminHandler) queryUsers(c *gin.Context) ([]models.User, bool) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	users = FilterUsers(users, c.Query("q"), c.Query("status"))
	SortUsers(users, c.DefaultQuery("sort", "name"), c.DefaultQuery("dir", "asc"))
	return users, true
}

func userStatus(u models.User) string {
	if u.IsBanned {
		return "Banned"
	}
	return "Active"
}

// FilterUsers keeps users whose name or email contains q case-insensitively,
// or whose uid contains q. status is "Active", "Banned" or empty for all.
func FilterUsers(users []models.User, q, status string) []models.User {
	q = strings.TrimSpace(q)
	lq := strings.ToLower(q)
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if q != "" &&
			!strings.Contains(strings.ToLower(u.Name), lq) &&
			!strings.Contains(strings.ToLower(u.Email), lq) &&
			!strings.Contains(u.UID, q) {
			continue
		}
		if status != "" && !strings.EqualFold(status, "all") && !strings.EqualFold(status, userStatus(u)) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// SortUsers orders users by column ("name", "email", "uid", "status",
// "last_seen", "created_at") in dir ("asc" or "desc"). Unknown columns sort by name.
func SortUsers(users []models.User, column, dir string) {
	key := func(u models.User) string {
		switch column {
		case "email":
			return u.Email
		case "uid":
			return u.UID
		case "status":
			return userStatus(u)
		case "last_seen":
			if u.LastSeen == nil {
				return ""
			}
			return u.LastSeen.UTC().Format(time.RFC3339Nano)
		case "created_at":
			return u.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		return u.Name
	}
	desc := strings.EqualFold(dir, "desc")
	sort.SliceStable(users, func(i, j int) bool {
		a, b := key(users[i]), key(users[j])
		if desc {
			return a > b
		}
		return a < b
	})
}

// UpdateUser merge-writes a user's profile on their behalf.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if upd.Name != nil {
		name, err := chatops.ValidateName(*upd.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		upd.Name = &name
	}
	if upd.CustomStatus != nil {
		status, err := chatops.ValidateStatus(*upd.CustomStatus)
		if err != nil {
			writeError(c, err)
			return
		}
		upd.CustomStatus = &status
	}
	h.updateUser(c, "admin_update_user", upd)
}

// ClearAvatar removes a user's avatar.
func (h *AdminHandler) ClearAvatar(c *gin.Context) {
	empty := ""
	h.updateUser(c, "admin_clear_avatar", models.ProfileUpdate{AvatarURL: &empty})
}

func (h *AdminHandler) updateUser(c *gin.Context, action string, upd models.ProfileUpdate) {
	ctx := c.Request.Context()
	uid := c.Param("uid")
	user, err := h.users.UpdateProfile(ctx, uid, upd)
	observability.ObserveCommand(action, err)
	if err != nil {
		writeError(c, err)
		return
	}
	emitAudit(c, h.audit, "INFO", action, "Profile of "+uid+" changed by admin")
	h.hub.Notify(ctx, ws.TopicUsers)
	c.JSON(http.StatusOK, user)
}

// ToggleBan flips the banned flag of a user.
func (h *AdminHandler) ToggleBan(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("uid")
	if uid == middleware.Identity(c).UID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot ban yourself"})
		return
	}
	user, err := h.users.GetUser(ctx, uid)
	if err != nil {
		writeError(c, err)
		return
	}
	banned := !user.IsBanned
	err = h.users.SetBanned(ctx, uid, banned)
	observability.ObserveCommand("ban", err)
	if err != nil {
		writeError(c, err)
		return
	}

	action := "user_unbanned"
	if banned {
		action = "user_banned"
	}
	emitAudit(c, h.audit, "WARN", action, "User "+uid+" ban set to "+boolText(banned))
	h.hub.Notify(ctx, ws.TopicUsers)
	if err := observability.PublishEvent(ctx, observability.EventUserBanned, gin.H{"uid": uid, "banned": banned}, eventHeaders(c)); err != nil {
		logger.Log.Warn("ban_event_publish_failed", zap.String("uid", uid), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"uid": uid, "is_banned": banned})
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// PasswordReset asks the identity provider to send a reset email.
func (h *AdminHandler) PasswordReset(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.users.GetUser(ctx, c.Param("uid"))
	if err != nil {
		writeError(c, err)
		return
	}
	if user.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user has no email"})
		return
	}
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker not configured"})
		return
	}

	req := observability.PasswordResetRequest{UID: user.UID, Email: user.Email, RequestedBy: middleware.Identity(c).UID}
	err = h.publisher.Publish(ctx, observability.PasswordResetRouting, req, eventHeaders(c))
	observability.ObserveCommand("password_reset", err)
	if err != nil {
		observability.IncAMQPPublishError()
		emitAudit(c, h.audit, "ERROR", "password_reset", "password reset publish failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not request password reset"})
		return
	}
	emitAudit(c, h.audit, "INFO", "password_reset", "Password reset requested for "+user.UID)
	c.JSON(http.StatusAccepted, gin.H{"email": user.Email})
}

// ListChats returns every chat.
func (h *AdminHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListAllChats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	chatops.SortChats(chats)
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// InspectChat returns the last 50 messages of any chat.
func (h *AdminHandler) InspectChat(c *gin.Context) {
	ctx := c.Request.Context()
	chat, err := h.chats.GetChat(ctx, c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	msgs, err := h.messages.ListRecent(ctx, chat.ID, inspectLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": msgs})
}

// DeleteChat removes any chat with its messages.
func (h *AdminHandler) DeleteChat(c *gin.Context) {
	ctx := c.Request.Context()
	chat, err := h.chats.GetChat(ctx, c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	err = h.chats.DeleteChat(ctx, chat.ID)
	observability.ObserveCommand("admin_delete_chat", err)
	if err != nil {
		writeError(c, err)
		return
	}
	emitAudit(c, h.audit, "WARN", "admin_delete_chat", "Chat "+chat.ID+" deleted by admin")
	notifyChatDeleted(c, h.hub, chat)
	c.Status(http.StatusNoContent)
}

// ListAppeals returns all appeals, newest first.
func (h *AdminHandler) ListAppeals(c *gin.Context) {
	appeals, err := h.appeals.ListAppeals(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeals": appeals})
}

// ResolveAppeal marks an appeal resolved and optionally unbans its author.
func (h *AdminHandler) ResolveAppeal(c *gin.Context) {
	var req struct {
		Unban bool `json:"unban"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	appeal, err := h.appeals.GetAppeal(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Unban {
		if err := h.users.SetBanned(ctx, appeal.UserID, false); err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
			writeError(c, err)
			return
		}
	}
	err = h.appeals.ResolveAppeal(ctx, appeal.ID)
	observability.ObserveCommand("resolve_appeal", err)
	if err != nil {
		writeError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "appeal_resolved", "Appeal "+appeal.ID+" resolved")
	topics := []string{ws.TopicAppeals}
	if req.Unban {
		topics = append(topics, ws.TopicUsers)
	}
	h.hub.Notify(ctx, topics...)
	if err := observability.PublishEvent(ctx, observability.EventAppealResolved, gin.H{
		"appeal_id": appeal.ID,
		"user_id":   appeal.UserID,
		"unbanned":  req.Unban,
	}, eventHeaders(c)); err != nil {
		logger.Log.Warn("appeal_event_publish_failed", zap.String("appeal_id", appeal.ID), zap.Error(err))
	}
	appeal.Status = models.AppealResolved
	c.JSON(http.StatusOK, appeal)
}

// DeleteResolvedAppeals removes every resolved appeal in one batch.
func (h *AdminHandler) DeleteResolvedAppeals(c *gin.Context) {
	n, err := h.appeals.DeleteResolved(c.Request.Context(), time.Now().Add(time.Second))
	observability.ObserveCommand("delete_resolved_appeals", err)
	if err != nil {
		writeError(c, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "appeals_cleared", "Resolved appeals cleared")
	h.hub.Notify(c.Request.Context(), ws.TopicAppeals)
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
