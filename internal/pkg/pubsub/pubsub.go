package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/himera_gate_server/internal/model"
)

const (
	ChannelAuthEvents = "himera:auth_events"
)

// AuthEventMessage 推送给管理端的审计事件
type AuthEventMessage struct {
	Type         string    `json:"type"`
	EventID      int64     `json:"event_id"`
	UserID       int64     `json:"user_id"`
	Action       string    `json:"action"`
	MaskedSecret string    `json:"masked_secret,omitempty"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewAuthEventMessage(event *model.AuthEvent) *AuthEventMessage {
	msg := &AuthEventMessage{
		Type:      "auth_event",
		EventID:   event.ID,
		UserID:    event.UserID,
		Action:    event.Action,
		CreatedAt: event.CreatedAt,
	}
	if event.MaskedSecret != nil {
		msg.MaskedSecret = *event.MaskedSecret
	}
	if event.Details != nil {
		msg.Details = *event.Details
	}
	return msg
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishAuthEvent 发布审计事件
func (p *Publisher) PublishAuthEvent(ctx context.Context, event *model.AuthEvent) error {
	data, err := json.Marshal(NewAuthEventMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}

	return p.client.Publish(ctx, ChannelAuthEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*AuthEventMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelAuthEvents)
	defer pubsub.Close()

	// 等待订阅确认，避免丢失紧随其后的消息
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event AuthEventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}

			handler(&event)
		}
	}
}
