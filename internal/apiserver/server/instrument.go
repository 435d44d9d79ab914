// Package server 存储与缓存的指标埋点
package server

import (
	"context"
	"time"

	"accounts-admin/internal/shared/cache"
	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

// 集合名与存储层保持一致
const (
	colUsers         = "users"
	colSearchRecords = "user_search_records"
)

// instrumentedStore 包装存储层，为每次调用记录查询计数与耗时
type instrumentedStore struct {
	inner   storage.Store
	metrics *Metrics
}

var _ storage.Store = (*instrumentedStore)(nil)

func instrumentStore(inner storage.Store, m *Metrics) storage.Store {
	return &instrumentedStore{inner: inner, metrics: m}
}

func (s *instrumentedStore) observe(operation, collection string, start time.Time) {
	s.metrics.RecordDBQuery(operation, collection, time.Since(start))
}

func (s *instrumentedStore) CreateUser(ctx context.Context, user *model.User) error {
	defer s.observe("create_user", colUsers, time.Now())
	return s.inner.CreateUser(ctx, user)
}

func (s *instrumentedStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	defer s.observe("get_user_by_id", colUsers, time.Now())
	return s.inner.GetUserByID(ctx, id)
}

func (s *instrumentedStore) GetUserByLogin(ctx context.Context, kind model.LoginKind, value string) (*model.User, error) {
	defer s.observe("get_user_by_login", colUsers, time.Now())
	return s.inner.GetUserByLogin(ctx, kind, value)
}

func (s *instrumentedStore) FindUserConflict(ctx context.Context, email, phone, username, userID string) (*model.User, error) {
	defer s.observe("find_user_conflict", colUsers, time.Now())
	return s.inner.FindUserConflict(ctx, email, phone, username, userID)
}

func (s *instrumentedStore) UpdateUserPassword(ctx context.Context, id, passwordHash, updatedBy string) error {
	defer s.observe("update_user_password", colUsers, time.Now())
	return s.inner.UpdateUserPassword(ctx, id, passwordHash, updatedBy)
}

func (s *instrumentedStore) UpdateUser(ctx context.Context, id string, upd storage.UserUpdate) error {
	defer s.observe("update_user", colUsers, time.Now())
	return s.inner.UpdateUser(ctx, id, upd)
}

func (s *instrumentedStore) SetSearchAmount(ctx context.Context, id string, amount int, updatedBy string) error {
	defer s.observe("set_search_amount", colUsers, time.Now())
	return s.inner.SetSearchAmount(ctx, id, amount, updatedBy)
}

func (s *instrumentedStore) SoftDeleteUser(ctx context.Context, id, deletedBy string) error {
	defer s.observe("soft_delete_user", colUsers, time.Now())
	return s.inner.SoftDeleteUser(ctx, id, deletedBy)
}

func (s *instrumentedStore) ListUsers(ctx context.Context, q storage.ListUsersQuery) ([]*model.User, int64, error) {
	defer s.observe("list_users", colUsers, time.Now())
	return s.inner.ListUsers(ctx, q)
}

func (s *instrumentedStore) DecrementSearchAmount(ctx context.Context, userID string) error {
	defer s.observe("decrement_search_amount", colUsers, time.Now())
	return s.inner.DecrementSearchAmount(ctx, userID)
}

func (s *instrumentedStore) CreateSearchRecord(ctx context.Context, rec *model.SearchRecord) error {
	defer s.observe("create_search_record", colSearchRecords, time.Now())
	return s.inner.CreateSearchRecord(ctx, rec)
}

func (s *instrumentedStore) ListSearchRecords(ctx context.Context, userID string) ([]*model.SearchRecord, error) {
	defer s.observe("list_search_records", colSearchRecords, time.Now())
	return s.inner.ListSearchRecords(ctx, userID)
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}

// instrumentedCache 包装档案缓存，记录命中情况
type instrumentedCache struct {
	inner   cache.UserProfileCache
	metrics *Metrics
}

var _ cache.UserProfileCache = (*instrumentedCache)(nil)

func instrumentCache(inner cache.UserProfileCache, m *Metrics) cache.UserProfileCache {
	return &instrumentedCache{inner: inner, metrics: m}
}

func (c *instrumentedCache) GetUserProfile(ctx context.Context, id string) (*model.User, error) {
	user, err := c.inner.GetUserProfile(ctx, id)
	switch {
	case err != nil:
		c.metrics.RecordCacheLookup("error")
	case user == nil:
		c.metrics.RecordCacheLookup("miss")
	default:
		c.metrics.RecordCacheLookup("hit")
	}
	return user, err
}

func (c *instrumentedCache) SetUserProfile(ctx context.Context, user *model.User) error {
	return c.inner.SetUserProfile(ctx, user)
}

func (c *instrumentedCache) DeleteUserProfile(ctx context.Context, id string) error {
	return c.inner.DeleteUserProfile(ctx, id)
}
