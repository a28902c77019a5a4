package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

// EventPublisher 审计事件的实时推送通道
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event *model.AuthEvent) error
}

// AuditRecorder 事件在事务内落库，提交后再推送
type AuditRecorder struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func NewAuditRecorder(publisher EventPublisher, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{publisher: publisher, logger: logger}
}

func (a *AuditRecorder) Record(ctx context.Context, tx *repository.Repositories, event *model.AuthEvent) error {
	event.ID = 0
	return tx.AuthEvents.Append(ctx, event)
}

// Publish 提交后调用，推送失败只记日志
func (a *AuditRecorder) Publish(ctx context.Context, events []*model.AuthEvent) {
	ctx = context.WithoutCancel(ctx)
	for _, event := range events {
		a.logger.Info("auth event",
			zap.Int64("user_id", event.UserID),
			zap.String("action", event.Action),
			zap.Stringp("masked_secret", event.MaskedSecret),
			zap.Stringp("details", event.Details),
		)
		if a.publisher == nil {
			continue
		}
		if err := a.publisher.PublishAuthEvent(ctx, event); err != nil {
			a.logger.Warn("publish auth event failed", zap.String("action", event.Action), zap.Error(err))
		}
	}
}

func newAuthEvent(userID int64, action, secret, details string, at time.Time) *model.AuthEvent {
	event := &model.AuthEvent{
		UserID:    userID,
		Action:    action,
		CreatedAt: at,
	}
	if secret != "" {
		masked := MaskSecret(secret)
		event.MaskedSecret = &masked
	}
	if details != "" {
		event.Details = &details
	}
	return event
}
