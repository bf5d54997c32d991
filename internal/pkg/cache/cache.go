package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/marataitester/tarot_go_server/internal/model"
)

// ErrMiss 缓存中没有该用户的快照
var ErrMiss = errors.New("cache miss")

// StatusCache 权限记录在 Redis 中的镜像。
// 只是数据库的尽力而为副本：数据库读失败时用它做降级评估，
// 绝不作为第二事实来源，也绝不凭空延长付费窗口。
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func key(userID int64) string {
	return fmt.Sprintf("entitlement:%d", userID)
}

// Set 刷新镜像（每次成功读写数据库后调用）
func (c *StatusCache) Set(ctx context.Context, rec *model.Entitlement) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}
	return c.client.Set(ctx, key(rec.UserID), data, c.ttl).Err()
}

// Get 读取镜像
func (c *StatusCache) Get(ctx context.Context, userID int64) (*model.Entitlement, error) {
	data, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}

	var rec model.Entitlement
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entitlement: %w", err)
	}
	return &rec, nil
}

// Invalidate 删除镜像
func (c *StatusCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, key(userID)).Err()
}
