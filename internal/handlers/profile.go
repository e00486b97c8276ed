package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/storage"
	"realtime-chat/internal/ws"
)

// ProfileHandler serves the caller's own profile document.
type ProfileHandler struct {
	users repositories.UserRepository
	hub   Notifier
}

// NewProfileHandler builds a ProfileHandler.
func NewProfileHandler(users repositories.UserRepository, hub Notifier) *ProfileHandler {
	return &ProfileHandler{users: users, hub: hub}
}

// GetProfile returns the caller's profile, creating it on first access.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id := middleware.Identity(c)
	user, err := h.users.GetUser(c.Request.Context(), id.UID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		user, err = h.users.EnsureUser(c.Request.Context(), id.UID, id.Email)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type profileRequest struct {
	Name   *string `json:"name"`
	Mobile *string `json:"mobile"`
	Age    *string `json:"age"`
	Gender *string `json:"gender"`
}

// UpdateProfile merge-writes the editable fields. Omitted fields are kept.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upd := models.ProfileUpdate{Mobile: req.Mobile, Age: req.Age, Gender: req.Gender}
	if req.Name != nil {
		name, err := chatops.ValidateName(*req.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		upd.Name = &name
	}
	h.save(c, "profile", upd)
}

// UpdateStatus handles PUT /profile/status.
func (h *ProfileHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		CustomStatus  *string `json:"custom_status"`
		ChatWallpaper *string `json:"chat_wallpaper"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upd := models.ProfileUpdate{}
	if req.CustomStatus != nil {
		status, err := chatops.ValidateStatus(*req.CustomStatus)
		if err != nil {
			writeError(c, err)
			return
		}
		upd.CustomStatus = &status
	}
	if req.ChatWallpaper != nil {
		wallpaper := strings.TrimSpace(*req.ChatWallpaper)
		upd.ChatWallpaper = &wallpaper
	}
	h.save(c, "status", upd)
}

// UploadAvatar stores the multipart "file" inline on the profile as a
// compressed data URL.
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, errMissingFile)
		return
	}
	defer file.Close()

	dataURL, err := storage.EncodeAvatar(file)
	if err != nil {
		observability.ObserveCommand("avatar", err)
		writeError(c, err)
		return
	}
	h.save(c, "avatar", models.ProfileUpdate{AvatarURL: &dataURL})
}

func (h *ProfileHandler) save(c *gin.Context, command string, upd models.ProfileUpdate) {
	id := middleware.Identity(c)
	ctx := c.Request.Context()
	if _, err := h.users.EnsureUser(ctx, id.UID, id.Email); err != nil {
		writeError(c, err)
		return
	}
	user, err := h.users.UpdateProfile(ctx, id.UID, upd)
	observability.ObserveCommand(command, err)
	if err != nil {
		writeError(c, err)
		return
	}
	h.hub.Notify(ctx, ws.TopicUsers)
	c.JSON(http.StatusOK, user)
}
