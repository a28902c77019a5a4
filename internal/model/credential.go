package model

import (
	"time"
)

// Credential 管理员发放的访问口令
type Credential struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Text         string    `gorm:"column:password_text;size:255;uniqueIndex;not null" json:"-"`
	Description  string    `gorm:"size:500" json:"description"`
	DurationDays int       `gorm:"not null" json:"duration_days"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	TimesUsed    int       `gorm:"default:0" json:"times_used"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Credential) TableName() string {
	return "credentials"
}
