// Package cache 缓存层抽象接口
//
// 提供用户档案的读多写少缓存能力，当前由 Redis 实现。
// 缓存是尽力而为的：读失败回落到权威存储，写失败不影响所在请求。
package cache

import (
	"context"

	"accounts-admin/internal/shared/model"
)

// UserProfileCache 用户档案缓存接口
type UserProfileCache interface {
	GetUserProfile(ctx context.Context, id string) (*model.User, error)
	SetUserProfile(ctx context.Context, user *model.User) error
	DeleteUserProfile(ctx context.Context, id string) error
}

// Cache 缓存组合接口
type Cache interface {
	UserProfileCache
	Close() error
}
