package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Role         string         `gorm:"default:'user'" json:"role"` // admin, user
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

type Channel struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Title             string    `gorm:"not null" json:"title"`
	Username          string    `gorm:"index" json:"username"`    // public handle, empty for private channels
	InviteLink        string    `json:"invite_link"`              // last exported link
	CanHaveInviteLink bool      `json:"can_have_invite_link"`
	CreatedAt         time.Time `json:"created_at"`
}

// ChannelAdmin grants a user rights on a channel.
type ChannelAdmin struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	UserID        uint `gorm:"uniqueIndex:idx_admin_user_channel;not null" json:"user_id"`
	ChannelID     uint `gorm:"uniqueIndex:idx_admin_user_channel;not null" json:"channel_id"`
	CanManageCall bool `json:"can_manage_call"`
	CanInvite     bool `json:"can_invite"`
}

type GroupCall struct {
	ID                 string     `gorm:"primaryKey;size:64" json:"id"`
	ChannelID          uint       `gorm:"index;not null" json:"channel_id"`
	Title              string     `json:"title"`
	Active             bool       `gorm:"index" json:"active"`
	JoinMuted          bool       `json:"join_muted"`
	CanChangeJoinMuted bool       `json:"can_change_join_muted"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
}

type Webhook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChannelID uint      `gorm:"index;not null" json:"channel_id"`
	URL       string    `gorm:"not null" json:"url"`
	Platform  string    `json:"platform"` // telegram, slack, generic
	ChatID    string    `json:"chat_id"`  // For Telegram
	Template  string    `json:"template"` // "{{.Kind}} on {{.CallID}}"
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
