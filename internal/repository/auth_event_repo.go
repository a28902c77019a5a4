package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/himera_gate_server/internal/model"
)

type AuthEventRepository struct {
	db *gorm.DB
}

func NewAuthEventRepository(db *gorm.DB) *AuthEventRepository {
	return &AuthEventRepository{db: db}
}

func (r *AuthEventRepository) Append(ctx context.Context, event *model.AuthEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// List 最新在前，userID 为 nil 时不过滤
func (r *AuthEventRepository) List(ctx context.Context, userID *int64, limit int) ([]model.AuthEvent, error) {
	var events []model.AuthEvent
	query := r.db.WithContext(ctx).Model(&model.AuthEvent{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}
