// Package handlers implements the HTTP command surface. Every command does its
// write(s), then notifies the listener topics it touched.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/storage"
)

// Notifier refreshes listener topics after a write.
type Notifier interface {
	Notify(ctx context.Context, topics ...string)
	Evict(topic, uid string)
}

var (
	errBanned       = errors.New("account is banned")
	errNotBanned    = errors.New("account is not banned")
	errNotPublic    = errors.New("chat is not a public room")
	errMissingFile  = errors.New("file is required")
	errEmptyMessage = errors.New("message is required")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrAppealNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatops.ErrNotSender),
		errors.Is(err, chatops.ErrNotParticipant),
		errors.Is(err, errBanned),
		errors.Is(err, errNotPublic):
		return http.StatusForbidden
	case errors.Is(err, chatops.ErrMessageDeleted):
		return http.StatusConflict
	case errors.Is(err, storage.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chatops.ErrEmptyText),
		errors.Is(err, chatops.ErrNotEditable),
		errors.Is(err, chatops.ErrEmptyEmoji),
		errors.Is(err, chatops.ErrNotPoll),
		errors.Is(err, chatops.ErrUnknownOption),
		errors.Is(err, chatops.ErrPollQuestion),
		errors.Is(err, chatops.ErrPollOptions),
		errors.Is(err, chatops.ErrPollTooMany),
		errors.Is(err, chatops.ErrNothingToSend),
		errors.Is(err, chatops.ErrNameTooShort),
		errors.Is(err, chatops.ErrStatusTooLong),
		errors.Is(err, chatops.ErrGroupName),
		errors.Is(err, chatops.ErrSelfChat),
		errors.Is(err, chatops.ErrUnknownOverlay),
		errors.Is(err, storage.ErrInvalidMIME),
		errors.Is(err, storage.ErrEmptyFile),
		errors.Is(err, storage.ErrAvatarTooLarge),
		errors.Is(err, storage.ErrInvalidImage),
		errors.Is(err, errNotBanned),
		errors.Is(err, errMissingFile),
		errors.Is(err, errEmptyMessage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and a JSON body. Internal errors are logged
// and not echoed to the caller.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Log.Error("request_failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func callerID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

// memberChat loads the chat named by the :chat_id param and checks that uid
// belongs to it. It writes the error response itself.
func memberChat(c *gin.Context, chats repositories.ChatRepository, uid string) (models.Chat, bool) {
	chat, err := chats.GetChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return models.Chat{}, false
	}
	if !chat.HasParticipant(uid) {
		writeError(c, chatops.ErrNotParticipant)
		return models.Chat{}, false
	}
	return chat, true
}

// ensureNotBanned rejects writes from banned accounts. A caller without a
// profile document yet is not banned.
func ensureNotBanned(ctx context.Context, users repositories.UserRepository, uid string) error {
	user, err := users.GetUser(ctx, uid)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsBanned {
		return errBanned
	}
	return nil
}
