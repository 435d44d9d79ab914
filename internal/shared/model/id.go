package model

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID 生成用户记录主键，格式 usr-xxxxxxxxxxxx
func NewID() string {
	return randomID("usr-")
}

// NewRecordID 生成查询记录主键，格式 rec-xxxxxxxxxxxx
func NewRecordID() string {
	return randomID("rec-")
}

func randomID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + hex.EncodeToString(b)
}
