package storage

import (
	"context"

	"accounts-admin/internal/shared/model"
)

// UserFilter 用户列表过滤条件
type UserFilter string

const (
	FilterAll        UserFilter = "all"
	FilterHasAccount UserFilter = "has_account"
	FilterNoAccount  UserFilter = "not_have_account"
)

// Valid 检查过滤条件合法性（空值等同 all）
func (f UserFilter) Valid() bool {
	switch f {
	case "", FilterAll, FilterHasAccount, FilterNoAccount:
		return true
	}
	return false
}

// ListUsersQuery 用户列表查询参数
type ListUsersQuery struct {
	Keyword string     // 关键字：匹配 email/username（不区分大小写）和 phone
	Filter  UserFilter // 是否已开通登录账号
	Skip    int64
	Limit   int64
}

// UserUpdate 管理员更新用户的字段集合
// nil 指针表示对应字段不修改
type UserUpdate struct {
	UserID           *string
	PasswordHash     *string
	SearchAmountLeft *int
	UpdatedBy        string
}

// UserDirectory 用户目录存储接口
//
// 查询类方法在记录不存在时返回 (nil, nil)，调用方通过 nil 判断存在性；
// 唯一性约束由存储层索引裁决，冲突统一转换为 ErrDuplicate。
// 所有查询只命中未软删除（deleted_at 为空）的记录。
type UserDirectory interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByLogin(ctx context.Context, kind model.LoginKind, value string) (*model.User, error)
	// FindUserConflict 按任一非空标识（email/phone/username/userId）查找已有记录，
	// 用于创建前的存在性检查
	FindUserConflict(ctx context.Context, email, phone, username, userID string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash, updatedBy string) error
	UpdateUser(ctx context.Context, id string, upd UserUpdate) error
	SetSearchAmount(ctx context.Context, id string, amount int, updatedBy string) error
	SoftDeleteUser(ctx context.Context, id, deletedBy string) error
	ListUsers(ctx context.Context, q ListUsersQuery) ([]*model.User, int64, error)
}

// SearchRecordStore 查询记录存储接口
type SearchRecordStore interface {
	// DecrementSearchAmount 条件扣减配额：仅当 search_amount_left > 0 时扣减，
	// 未命中返回 ErrQuotaExceeded（并发扣减由存储层原子操作保证不会透支）
	DecrementSearchAmount(ctx context.Context, userID string) error
	CreateSearchRecord(ctx context.Context, rec *model.SearchRecord) error
	ListSearchRecords(ctx context.Context, userID string) ([]*model.SearchRecord, error)
}

// Store 持久化存储组合接口
type Store interface {
	UserDirectory
	SearchRecordStore
	Close() error
}
