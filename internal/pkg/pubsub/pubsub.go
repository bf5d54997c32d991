package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelEntitlementUpdates = "entitlement_updates"
)

// StatusMessage 权限变更消息，在每次成功的配额消耗/支付激活后发布，
// WebSocket 端订阅后推送给小程序，让前端镜像及时对账。
type StatusMessage struct {
	Type         string `json:"type"`
	UserID       int64  `json:"user_id"`
	HasAccess    bool   `json:"has_access"`
	IsPaid       bool   `json:"is_paid"`
	AttemptsLeft *int   `json:"attempts_left"`
	PaidUntil    string `json:"paid_until,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishStatus 发布权限变更
func (p *Publisher) PublishStatus(ctx context.Context, msg *StatusMessage) error {
	msg.Type = "entitlement_update"

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal status message: %w", err)
	}

	return p.client.Publish(ctx, ChannelEntitlementUpdates, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅权限变更，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*StatusMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelEntitlementUpdates)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var statusMsg StatusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &statusMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&statusMsg)
		}
	}
}
