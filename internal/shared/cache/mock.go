package cache

import (
	"context"

	"accounts-admin/internal/shared/model"
)

// NoOpCache 空操作缓存，用于测试和未配置 Redis 的部署
type NoOpCache struct{}

var _ Cache = (*NoOpCache)(nil)

// NewNoOpCache 创建空操作缓存
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) GetUserProfile(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

func (c *NoOpCache) SetUserProfile(ctx context.Context, user *model.User) error {
	return nil
}

func (c *NoOpCache) DeleteUserProfile(ctx context.Context, id string) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
