package model

import (
	"time"
)

// 对话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn 对话历史中的一条消息
type Turn struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	UserID            int64     `gorm:"not null;index:idx_turns_user_id_id,priority:1" json:"user_id"`
	Role              string    `gorm:"size:16;not null" json:"role"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	EmotionLabel      *string   `gorm:"size:32" json:"emotion_label,omitempty"`
	EmotionConfidence *float64  `json:"emotion_confidence,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func (Turn) TableName() string {
	return "turns"
}
