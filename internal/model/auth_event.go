package model

import (
	"time"
)

// 审计事件类型
const (
	ActionPasswordSuccess     = "password_success"
	ActionPasswordFail        = "password_fail"
	ActionAutoExpired         = "auto_expired"
	ActionBlocked             = "blocked"
	ActionUnblocked           = "unblocked"
	ActionManualLogout        = "manual_logout"
	ActionPasswordAdded       = "password_added"
	ActionPasswordDeactivated = "password_deactivated"
)

// AuthEvent 只追加的授权审计日志
type AuthEvent struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	Action       string    `gorm:"size:32;not null;index" json:"action"`
	MaskedSecret *string   `gorm:"size:255" json:"masked_secret,omitempty"`
	Details      *string   `gorm:"type:text" json:"details,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (AuthEvent) TableName() string {
	return "auth_events"
}
