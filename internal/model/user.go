package model

import (
	"time"
)

// User 用户授权账本，一行对应一个聊天用户
type User struct {
	UserID          int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	IsAuthorized    bool       `gorm:"default:false;index" json:"is_authorized"`
	AuthorizedUntil *time.Time `gorm:"index" json:"authorized_until,omitempty"`
	PasswordUsed    *string    `gorm:"size:255" json:"-"`
	FailedAttempts  int        `gorm:"default:0" json:"failed_attempts"`
	BlockedUntil    *time.Time `gorm:"index" json:"blocked_until,omitempty"`
	WarnedExpiry    bool       `gorm:"default:false" json:"warned_expiry"`
	LastAuth        *time.Time `json:"last_auth,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsBlocked 锁定期是否仍在生效
func (u *User) IsBlocked(now time.Time) bool {
	return u.BlockedUntil != nil && u.BlockedUntil.After(now)
}

// HasActiveAuthorization 授权标记为真且未过期
func (u *User) HasActiveAuthorization(now time.Time) bool {
	return u.IsAuthorized && u.AuthorizedUntil != nil && u.AuthorizedUntil.After(now)
}
