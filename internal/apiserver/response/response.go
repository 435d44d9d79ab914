// Package response 统一响应信封
//
// 成功:  {"success": true, "response": <payload>}
// 失败:  {"error": {"code", "message", "target": [..], "innererror": {}}}
// 列表接口额外携带 "pagination" 块。
package response

import (
	"encoding/json"
	"net/http"
)

// ErrorCode 错误码枚举
type ErrorCode string

const (
	CodeInvalidParameter ErrorCode = "InvalidParameter"
	CodeUnauthorized     ErrorCode = "Unauthorized"
	CodeNotFound         ErrorCode = "NotFound"
	CodeAlreadyExist     ErrorCode = "AlreadyExist"
	CodeBadRequest       ErrorCode = "BadRequest"
	CodeServerError      ErrorCode = "ServerError"
)

// ErrorBody 错误信封内容
type ErrorBody struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Target     []string               `json:"target"`
	InnerError map[string]interface{} `json:"innererror"`
}

// Pagination 分页信息
type Pagination struct {
	StartPage    int   `json:"startPage"`
	Limit        int   `json:"limit"`
	TotalPages   int   `json:"totalPages"`
	TotalRecords int64 `json:"totalRecords"`
}

type successEnvelope struct {
	Success    bool        `json:"success"`
	Response   interface{} `json:"response,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// OK 写入成功信封
func OK(w http.ResponseWriter, status int, payload interface{}) {
	writeJSON(w, status, successEnvelope{Success: true, Response: payload})
}

// OKWithPagination 写入带分页的成功信封
func OKWithPagination(w http.ResponseWriter, status int, payload interface{}, p Pagination) {
	writeJSON(w, status, successEnvelope{Success: true, Response: payload, Pagination: &p})
}

// Err 写入错误信封
// target 标记与错误相关的字段名，内部细节绝不外泄
func Err(w http.ResponseWriter, status int, code ErrorCode, message string, target ...string) {
	if target == nil {
		target = []string{}
	}
	writeJSON(w, status, errorEnvelope{Error: ErrorBody{
		Code:       code,
		Message:    message,
		Target:     target,
		InnerError: map[string]interface{}{},
	}})
}
