package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.User)) *model.User {
	t.Helper()

	user := &model.User{UserID: userID}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	// default 标签会跳过零值布尔，补一次显式写入
	if err := db.Model(user).Updates(map[string]interface{}{
		"is_authorized": user.IsAuthorized,
		"warned_expiry": user.WarnedExpiry,
	}).Error; err != nil {
		t.Fatalf("Failed to update test user: %v", err)
	}

	return user
}

// WithAuthorizedUntil 设置有效授权
func WithAuthorizedUntil(until time.Time) func(*model.User) {
	return func(u *model.User) {
		u.IsAuthorized = true
		u.AuthorizedUntil = &until
	}
}

// WithWarned 设置已提醒过期
func WithWarned() func(*model.User) {
	return func(u *model.User) {
		u.WarnedExpiry = true
	}
}

// WithFailedAttempts 设置失败次数
func WithFailedAttempts(n int) func(*model.User) {
	return func(u *model.User) {
		u.FailedAttempts = n
	}
}

// WithBlockedUntil 设置锁定截止时间
func WithBlockedUntil(until time.Time) func(*model.User) {
	return func(u *model.User) {
		u.BlockedUntil = &until
	}
}

// TestCredential 创建测试口令
func TestCredential(t *testing.T, db *gorm.DB, text string, days int, opts ...func(*model.Credential)) *model.Credential {
	t.Helper()

	cred := &model.Credential{
		Text:         text,
		DurationDays: days,
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(cred)
	}

	if err := db.Create(cred).Error; err != nil {
		t.Fatalf("Failed to create test credential: %v", err)
	}
	if !cred.IsActive {
		if err := db.Model(cred).Update("is_active", false).Error; err != nil {
			t.Fatalf("Failed to deactivate test credential: %v", err)
		}
	}

	return cred
}

// WithInactive 创建已停用口令
func WithInactive() func(*model.Credential) {
	return func(c *model.Credential) {
		c.IsActive = false
	}
}

// WithTimesUsed 设置使用次数
func WithTimesUsed(n int) func(*model.Credential) {
	return func(c *model.Credential) {
		c.TimesUsed = n
	}
}

// TestTurn 写入一条历史消息
func TestTurn(t *testing.T, db *gorm.DB, userID int64, role, content string, opts ...func(*model.Turn)) *model.Turn {
	t.Helper()

	turn := &model.Turn{
		UserID:  userID,
		Role:    role,
		Content: content,
	}
	for _, opt := range opts {
		opt(turn)
	}

	if err := db.Create(turn).Error; err != nil {
		t.Fatalf("Failed to create test turn: %v", err)
	}

	return turn
}

// WithEmotion 设置情绪标签
func WithEmotion(label string, confidence float64) func(*model.Turn) {
	return func(turn *model.Turn) {
		turn.EmotionLabel = &label
		turn.EmotionConfidence = &confidence
	}
}

// TestCounter 设置某日计数
func TestCounter(t *testing.T, db *gorm.DB, userID int64, date string, count int) {
	t.Helper()

	if err := db.Create(&model.DailyCounter{UserID: userID, Date: date, Count: count}).Error; err != nil {
		t.Fatalf("Failed to create test counter: %v", err)
	}
}
