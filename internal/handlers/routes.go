package handlers

import (
	"github.com/gin-gonic/gin"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/storage"
)

// Routes groups the handlers mounted on the API router.
type Routes struct {
	Chats    *ChatHandler
	Messages *MessageHandler
	Profile  *ProfileHandler
	Appeals  *AppealHandler
	Admin    *AdminHandler
}

// Register mounts every command route behind auth, and the admin routes
// behind auth plus the admin role.
func (r Routes) Register(router gin.IRouter, auth gin.HandlerFunc) {
	api := router.Group("/", auth)

	api.GET("/chats", r.Chats.ListChats)
	api.POST("/chats/direct", r.Chats.OpenDirect)
	api.POST("/chats/group", r.Chats.CreateGroup)
	api.POST("/rooms", r.Chats.CreateRoom)
	api.POST("/rooms/:chat_id/join", r.Chats.JoinRoom)
	api.POST("/invite/:uid", r.Chats.Invite)
	api.POST("/chats/:chat_id/pin", r.Chats.Overlay(chatops.OverlayPin))
	api.POST("/chats/:chat_id/mute", r.Chats.Overlay(chatops.OverlayMute))
	api.POST("/chats/:chat_id/archive", r.Chats.Overlay(chatops.OverlayArchive))
	api.PUT("/chats/:chat_id/nickname", r.Chats.SetNickname)
	api.PUT("/chats/:chat_id/theme", r.Chats.SetTheme)
	api.POST("/chats/:chat_id/leave", r.Chats.Leave)
	api.DELETE("/chats/:chat_id/me", r.Chats.Leave)
	api.DELETE("/chats/:chat_id", r.Chats.DeleteChat)

	api.GET("/chats/:chat_id/messages", r.Messages.ListMessages)
	api.GET("/chats/:chat_id/messages/search", r.Messages.SearchMessages)
	api.POST("/chats/:chat_id/messages", r.Messages.SendText)
	api.POST("/chats/:chat_id/messages/image", r.Messages.SendUpload(storage.KindImage))
	api.POST("/chats/:chat_id/messages/audio", r.Messages.SendUpload(storage.KindAudio))
	api.POST("/chats/:chat_id/polls", r.Messages.SendPoll)
	api.PATCH("/chats/:chat_id/messages/:message_id", r.Messages.Edit)
	api.DELETE("/chats/:chat_id/messages/:message_id", r.Messages.Delete)
	api.POST("/chats/:chat_id/messages/:message_id/reactions", r.Messages.React)
	api.POST("/chats/:chat_id/messages/:message_id/star", r.Messages.Star)
	api.POST("/chats/:chat_id/messages/:message_id/vote", r.Messages.Vote)
	api.POST("/chats/:chat_id/messages/:message_id/read", r.Messages.Read)
	api.POST("/chats/:chat_id/messages/:message_id/forward", r.Messages.Forward)
	api.GET("/messages/starred", r.Messages.Starred)

	api.GET("/profile", r.Profile.GetProfile)
	api.PUT("/profile", r.Profile.UpdateProfile)
	api.PUT("/profile/status", r.Profile.UpdateStatus)
	api.POST("/profile/avatar", r.Profile.UploadAvatar)

	api.POST("/appeals", r.Appeals.FileAppeal)

	admin := router.Group("/admin", auth, middleware.RequireAdmin())
	admin.GET("/stats", r.Admin.Stats)
	admin.GET("/users", r.Admin.ListUsers)
	admin.GET("/users.csv", r.Admin.ExportUsers)
	admin.PUT("/users/:uid", r.Admin.UpdateUser)
	admin.POST("/users/:uid/ban", r.Admin.ToggleBan)
	admin.DELETE("/users/:uid/avatar", r.Admin.ClearAvatar)
	admin.POST("/users/:uid/password-reset", r.Admin.PasswordReset)
	admin.GET("/chats", r.Admin.ListChats)
	admin.GET("/chats/:chat_id/messages", r.Admin.InspectChat)
	admin.DELETE("/chats/:chat_id", r.Admin.DeleteChat)
	admin.GET("/appeals", r.Admin.ListAppeals)
	admin.POST("/appeals/:id/resolve", r.Admin.ResolveAppeal)
	admin.DELETE("/appeals/resolved", r.Admin.DeleteResolvedAppeals)
}
