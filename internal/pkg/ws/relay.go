package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/pkg/pubsub"
)

// PublishAuthEvent 未启用 Redis 时直接推送到本进程的连接
func (h *Hub) PublishAuthEvent(ctx context.Context, event *model.AuthEvent) error {
	return h.Broadcast(&Message{Type: "auth_event", Data: pubsub.NewAuthEventMessage(event)})
}

// Relay 把订阅到的事件转发给在线管理员
func (h *Hub) Relay(msg *pubsub.AuthEventMessage) {
	if err := h.Broadcast(&Message{Type: msg.Type, Data: msg}); err != nil {
		h.logger.Warn("relay auth event failed", zap.Int64("event_id", msg.EventID), zap.Error(err))
	}
}
