package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/himera_gate_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreate 首次出现的用户插入默认记录
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*model.User, error) {
	user := model.User{UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, userID)
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// ListBlocked 锁定期仍在生效的用户
func (r *UserRepository) ListBlocked(ctx context.Context, now time.Time) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("blocked_until IS NOT NULL AND blocked_until > ?", now).
		Order("blocked_until DESC").
		Find(&users).Error
	return users, err
}

// ListExpired 授权标记仍为真但已过期的用户
func (r *UserRepository) ListExpired(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("is_authorized = ? AND (authorized_until IS NULL OR authorized_until <= ?)", true, now).
		Pluck("user_id", &ids).Error
	return ids, err
}

// Counts 返回用户总数、有效授权数、锁定数
func (r *UserRepository) Counts(ctx context.Context, now time.Time) (total, authorized, blocked int64, err error) {
	db := r.db.WithContext(ctx).Model(&model.User{})
	if err = db.Count(&total).Error; err != nil {
		return
	}
	if err = r.db.WithContext(ctx).Model(&model.User{}).
		Where("is_authorized = ? AND authorized_until > ?", true, now).
		Count(&authorized).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&model.User{}).
		Where("blocked_until > ?", now).
		Count(&blocked).Error
	return
}
