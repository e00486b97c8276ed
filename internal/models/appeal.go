package models

import "time"

const (
	AppealPending  = "pending"
	AppealResolved = "resolved"
)

// BanAppeal is filed by a banned user and resolved by an admin.
type BanAppeal struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	UserEmail string    `db:"user_email" json:"user_email"`
	Message   string    `db:"message" json:"message"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// AdminStats backs the admin dashboard counters.
type AdminStats struct {
	TotalUsers     int `json:"total_users"`
	TotalChats     int `json:"total_chats"`
	OnlineUsers    int `json:"online_users"`
	PendingAppeals int `json:"pending_appeals"`
}
