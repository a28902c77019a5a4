package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/internal/model"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

func (r *CredentialRepository) GetByText(ctx context.Context, text string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).Where("password_text = ?", text).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepository) GetActiveByText(ctx context.Context, text string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).Where("password_text = ? AND is_active = ?", text, true).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepository) Deactivate(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *CredentialRepository) IncrementUsage(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", id).
		Update("times_used", gorm.Expr("times_used + 1")).Error
}

// List 按创建时间倒序
func (r *CredentialRepository) List(ctx context.Context) ([]model.Credential, error) {
	var creds []model.Credential
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&creds).Error
	return creds, err
}

type DurationCount struct {
	DurationDays int
	Count        int64
}

// CountByActive 返回启用与停用数量
func (r *CredentialRepository) CountByActive(ctx context.Context) (active, inactive int64, err error) {
	if err = r.db.WithContext(ctx).Model(&model.Credential{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&model.Credential{}).Where("is_active = ?", false).Count(&inactive).Error
	return
}

func (r *CredentialRepository) TotalUses(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Credential{}).
		Select("COALESCE(SUM(times_used), 0)").Scan(&total).Error
	return total, err
}

// ActiveByDuration 启用口令按时长分组计数
func (r *CredentialRepository) ActiveByDuration(ctx context.Context) ([]DurationCount, error) {
	var rows []DurationCount
	err := r.db.WithContext(ctx).Model(&model.Credential{}).
		Select("duration_days, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("duration_days").
		Order("duration_days").
		Scan(&rows).Error
	return rows, err
}
