// Package search 命理查询接口
//
// 查询按次计费：每次提交原子扣减一次剩余配额并留存查询记录，
// 配额耗尽后拒绝查询。
package search

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"accounts-admin/internal/apiserver/auth"
	"accounts-admin/internal/apiserver/response"
	"accounts-admin/internal/shared/cache"
	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

// Recorder 查询结果指标上报
type Recorder interface {
	RecordSearch(result string)
}

// Handler 查询 HTTP 处理器
type Handler struct {
	store    storage.Store
	cache    cache.UserProfileCache
	recorder Recorder
}

// NewHandler 创建查询处理器
func NewHandler(store storage.Store, c cache.UserProfileCache) *Handler {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Handler{store: store, cache: c}
}

// SetRecorder 设置指标上报器，nil 时不上报
func (h *Handler) SetRecorder(r Recorder) {
	h.recorder = r
}

func (h *Handler) recordSearch(result string) {
	if h.recorder != nil {
		h.recorder.RecordSearch(result)
	}
}

// RegisterRoutes 注册查询相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/users/search-numerology", h.Search)
	mux.HandleFunc("GET /api/v1/users/{id}/search-numerology", h.ListRecords)
}

type searchRequest struct {
	Name     string `json:"name"`
	Birthday string `json:"birthday"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
}

// Search 提交一次命理查询（需要会话）
// 扣减与配额检查是同一条原子操作，并发提交不会把配额减成负数
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid user")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}
	if req.Name == "" || req.Birthday == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "name", "birthday")
		return
	}

	user, err := h.store.GetUserByLogin(r.Context(), model.LoginByUserID, identity.UserID)
	if err != nil {
		log.Printf("[search] GetUserByLogin error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if user == nil {
		response.Err(w, http.StatusBadRequest, response.CodeNotFound, "User not existed", "userId")
		return
	}

	if err := h.store.DecrementSearchAmount(r.Context(), user.UserID); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			h.recordSearch("quota_exceeded")
			response.Err(w, http.StatusBadRequest, response.CodeBadRequest, "Search amount exceeded", "searchAmountLeft")
			return
		}
		log.Printf("[search] DecrementSearchAmount error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	rec := &model.SearchRecord{
		ID:        model.NewRecordID(),
		UserID:    user.UserID,
		Name:      req.Name,
		Birthday:  req.Birthday,
		Phone:     req.Phone,
		Company:   req.Company,
		CreatedAt: time.Now(),
		CreatedBy: identity.UserID,
	}
	if err := h.store.CreateSearchRecord(r.Context(), rec); err != nil {
		// 配额已扣，记录落库失败照实报错并留痕
		log.Printf("[search] CreateSearchRecord error after decrement: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	// 档案里的剩余配额变了，顺手清缓存
	if err := h.cache.DeleteUserProfile(r.Context(), user.ID); err != nil {
		log.Printf("[search] cache invalidate error: %v", err)
	}

	h.recordSearch("success")
	log.Printf("[search] Search recorded: %s -> %s", user.UserID, rec.ID)
	response.OK(w, http.StatusCreated, rec)
}

// ListRecords 查看某用户的全部查询记录（仅管理员），按时间倒序
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid user")
		return
	}
	if !identity.IsAdmin() {
		response.Err(w, http.StatusForbidden, response.CodeUnauthorized, "Permission denied")
		return
	}
	caller, err := h.store.GetUserByLogin(r.Context(), model.LoginByUserID, identity.UserID)
	if err != nil {
		log.Printf("[listSearchRecords] admin lookup error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if caller == nil || caller.Role != model.UserRoleAdmin {
		response.Err(w, http.StatusForbidden, response.CodeUnauthorized, "Permission denied")
		return
	}

	id := r.PathValue("id")
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[listSearchRecords] GetUserByID error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if user == nil {
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "User not existed", "id")
		return
	}

	// 只有开通过登录的用户才可能有查询记录
	records := []*model.SearchRecord{}
	if user.UserID != "" {
		records, err = h.store.ListSearchRecords(r.Context(), user.UserID)
		if err != nil {
			log.Printf("[listSearchRecords] ListSearchRecords error: %v", err)
			response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
			return
		}
	}
	response.OK(w, http.StatusOK, records)
}
