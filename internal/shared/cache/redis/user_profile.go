package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"accounts-admin/internal/shared/cache"
	"accounts-admin/internal/shared/model"

	"github.com/redis/go-redis/v9"
)

var _ cache.Cache = (*Store)(nil)

// KeyUserProfile 用户档案缓存键前缀
const KeyUserProfile = "cached_user_profile_"

// userProfileTTL 缓存有效期
const userProfileTTL = 5 * time.Minute

// GetUserProfile 读取缓存的用户档案，未命中返回 (nil, nil)
func (s *Store) GetUserProfile(ctx context.Context, id string) (*model.User, error) {
	data, err := s.client.Get(ctx, KeyUserProfile+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserProfile 缓存用户档案
// model.User 的密码哈希带 json:"-"，序列化时不会进入缓存
func (s *Store) SetUserProfile(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, KeyUserProfile+user.ID, data, userProfileTTL).Err()
}

// DeleteUserProfile 删除缓存的用户档案（档案变更后调用）
func (s *Store) DeleteUserProfile(ctx context.Context, id string) error {
	return s.client.Del(ctx, KeyUserProfile+id).Err()
}
