package model

import "time"

// SearchRecord 命理查询记录
// 每次成功的查询扣减一次用户配额（SearchAmountLeft）并落库一条记录
type SearchRecord struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	UserID    string    `json:"userId" bson:"user_id" db:"user_id"` // 发起查询的登录账号
	Name      string    `json:"name" bson:"name" db:"name"`
	Birthday  string    `json:"birthday" bson:"birthday" db:"birthday"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`
	Company   string    `json:"company,omitempty" bson:"company,omitempty" db:"company"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	CreatedBy string    `json:"createdBy,omitempty" bson:"created_by,omitempty" db:"created_by"`
}
