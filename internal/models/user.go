package models

import "time"

// User is a profile document keyed by the identity provider's uid.
// Users are never hard-deleted; a ban is a flag.
type User struct {
	UID           string     `db:"uid" json:"uid"`
	Name          string     `db:"name" json:"name"`
	Email         string     `db:"email" json:"email"`
	AvatarURL     string     `db:"avatar_url" json:"avatar_url"`
	Mobile        string     `db:"mobile" json:"mobile,omitempty"`
	Age           string     `db:"age" json:"age,omitempty"`
	Gender        string     `db:"gender" json:"gender,omitempty"`
	CustomStatus  string     `db:"custom_status" json:"custom_status,omitempty"`
	ChatWallpaper string     `db:"chat_wallpaper" json:"chat_wallpaper,omitempty"`
	IsBanned      bool       `db:"is_banned" json:"is_banned"`
	LastSeen      *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ProfileUpdate is a merge-write of the editable profile fields. Nil fields are left as they are.
type ProfileUpdate struct {
	Name          *string `json:"name,omitempty"`
	Email         *string `json:"email,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	Mobile        *string `json:"mobile,omitempty"`
	Age           *string `json:"age,omitempty"`
	Gender        *string `json:"gender,omitempty"`
	CustomStatus  *string `json:"custom_status,omitempty"`
	ChatWallpaper *string `json:"chat_wallpaper,omitempty"`
}
