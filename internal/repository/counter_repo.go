package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/himera_gate_server/internal/model"
)

type CounterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Get 当日计数，不存在时为 0
func (r *CounterRepository) Get(ctx context.Context, userID int64, date string) (int, error) {
	var counter model.DailyCounter
	err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.Count, nil
}

// Increment 计数加一并返回新值
func (r *CounterRepository) Increment(ctx context.Context, userID int64, date string) (int, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"message_count": gorm.Expr("message_count + 1")}),
	}).Create(&model.DailyCounter{UserID: userID, Date: date, Count: 1}).Error
	if err != nil {
		return 0, err
	}
	return r.Get(ctx, userID, date)
}

// CountBefore 早于 date 的计数行数
func (r *CounterRepository) CountBefore(ctx context.Context, date string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DailyCounter{}).Where("date < ?", date).Count(&count).Error
	return count, err
}

// PurgeBefore 删除早于 date 的计数行
func (r *CounterRepository) PurgeBefore(ctx context.Context, date string) (int64, error) {
	result := r.db.WithContext(ctx).Where("date < ?", date).Delete(&model.DailyCounter{})
	return result.RowsAffected, result.Error
}
