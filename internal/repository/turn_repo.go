package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Append(ctx context.Context, turn *model.Turn) error {
	return r.db.WithContext(ctx).Create(turn).Error
}

// Recent 最近 limit 条消息，按时间正序返回
func (r *TurnRepository) Recent(ctx context.Context, userID int64, limit int) ([]model.Turn, error) {
	var turns []model.Turn
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *TurnRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Turn{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
