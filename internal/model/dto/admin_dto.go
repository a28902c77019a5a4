package dto

import "time"

// AddCredentialRequest 新增口令
type AddCredentialRequest struct {
	Text         string `json:"text" binding:"required,max=255"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
	Description  string `json:"description" binding:"max=500"`
}

// DeactivateCredentialRequest 停用口令
type DeactivateCredentialRequest struct {
	Text string `json:"text" binding:"required,max=255"`
}

// CredentialInfo 口令信息，Text 默认为掩码
type CredentialInfo struct {
	Text         string    `json:"text"`
	Description  string    `json:"description"`
	DurationDays int       `json:"duration_days"`
	IsActive     bool      `json:"is_active"`
	TimesUsed    int       `json:"times_used"`
	CreatedAt    time.Time `json:"created_at"`
}

type DurationCount struct {
	DurationDays int   `json:"duration_days"`
	Count        int64 `json:"count"`
}

type CredentialStats struct {
	Active     int64           `json:"active"`
	Inactive   int64           `json:"inactive"`
	TotalUses  int64           `json:"total_uses"`
	ByDuration []DurationCount `json:"by_duration"`
}

type UserStats struct {
	Total      int64 `json:"total"`
	Authorized int64 `json:"authorized"`
	Blocked    int64 `json:"blocked"`
}

// AdminStats 管理面板统计
type AdminStats struct {
	Credentials CredentialStats `json:"credentials"`
	Users       UserStats       `json:"users"`
}

type BlockedUser struct {
	UserID         int64     `json:"user_id"`
	BlockedUntil   time.Time `json:"blocked_until"`
	Remaining      string    `json:"remaining"`
	FailedAttempts int       `json:"failed_attempts"`
}

type AuthEventInfo struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Action       string    `json:"action"`
	MaskedSecret string    `json:"masked_secret,omitempty"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HousekeepingReport 一次清理的结果
type HousekeepingReport struct {
	DryRun         bool   `json:"dry_run"`
	CutoffDate     string `json:"cutoff_date"`
	CountersPurged int64  `json:"counters_purged"`
	ExpiredRevoked int    `json:"expired_revoked"`
	// SessionsExpired 等待口令超时被退回免费模式的内存会话
	SessionsExpired int `json:"sessions_expired"`
}

// UnblockRequest 解除锁定
type UnblockRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}
