// Package model 领域模型定义
package model

import (
	"strings"
	"time"
)

// UserRole 用户角色
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// DefaultSearchAmount 新账户默认剩余查询次数
const DefaultSearchAmount = 50

// User 用户记录
//
// UserID 是可选的二级登录标识：为空表示"仅有档案、尚未开通登录账号"。
// Username 全局唯一；Email/Phone/UserID 非空时唯一（由存储层唯一索引保证）。
type User struct {
	ID               string     `json:"id" bson:"_id" db:"id"`
	UserID           string     `json:"userId,omitempty" bson:"user_id,omitempty" db:"user_id"`
	Username         string     `json:"username" bson:"username" db:"username"`
	Email            string     `json:"email,omitempty" bson:"email,omitempty" db:"email"`
	Phone            string     `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`
	PasswordHash     string     `json:"-" bson:"password_hash,omitempty" db:"password_hash"` // never expose in JSON
	Role             UserRole   `json:"role" bson:"role" db:"role"`
	SearchAmountLeft int        `json:"searchAmountLeft" bson:"search_amount_left" db:"search_amount_left"`
	CreatedAt        time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" bson:"updated_at" db:"updated_at"`
	CreatedBy        string     `json:"createdBy,omitempty" bson:"created_by,omitempty" db:"created_by"`
	UpdatedBy        string     `json:"updatedBy,omitempty" bson:"updated_by,omitempty" db:"updated_by"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty" bson:"deleted_at,omitempty" db:"deleted_at"`
}

// HasCredentials 是否已开通登录凭据
func (u *User) HasCredentials() bool {
	return u.PasswordHash != ""
}

// IsDeleted 是否已软删除
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// NormalizeEmail 邮箱标准化：去首尾空白并转小写
// 存储和查询前都必须经过此函数，保证大小写不敏感匹配
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoginKind 登录标识类型
type LoginKind string

const (
	LoginByUserID LoginKind = "userId"
	LoginByEmail  LoginKind = "email"
	LoginByPhone  LoginKind = "phone"
)

// ResolveLogin 在流程入口处一次性确定登录标识类型
// 优先级：userId > email > phone；全空返回 ("", "")
func ResolveLogin(userID, email, phone string) (LoginKind, string) {
	switch {
	case userID != "":
		return LoginByUserID, userID
	case email != "":
		return LoginByEmail, NormalizeEmail(email)
	case phone != "":
		return LoginByPhone, phone
	default:
		return "", ""
	}
}
