// Package storage 定义存储层抽象接口与领域错误
//
// 这些错误用于隔离业务层与底层存储引擎的错误类型，
// 各驱动实现（mongostore/repository）负责将底层错误转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 sql.ErrNoRows / mongo.ErrNoDocuments
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate 唯一键冲突
	// 并发注册同名用户时由存储层唯一索引裁决，恰好一方收到此错误
	ErrDuplicate = errors.New("duplicate: entity already exists")

	// ErrQuotaExceeded 查询配额耗尽（条件扣减未命中）
	ErrQuotaExceeded = errors.New("search quota exceeded")
)
