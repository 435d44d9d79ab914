// Package user 用户管理接口（仅管理员）
package user

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"accounts-admin/internal/apiserver/auth"
	"accounts-admin/internal/apiserver/response"
	"accounts-admin/internal/shared/cache"
	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Handler 用户管理 HTTP 处理器
type Handler struct {
	store storage.UserDirectory
	cache cache.UserProfileCache
	cfg   auth.Config
}

// NewHandler 创建用户管理处理器
func NewHandler(store storage.UserDirectory, c cache.UserProfileCache, cfg auth.Config) *Handler {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Handler{store: store, cache: c, cfg: cfg}
}

// RegisterRoutes 注册用户管理路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/users", h.ListUsers)
	mux.HandleFunc("POST /api/v1/users", h.CreateUser)
	mux.HandleFunc("GET /api/v1/users/{id}", h.GetUser)
	mux.HandleFunc("PUT /api/v1/users/{id}", h.UpdateUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", h.DeleteUser)
	mux.HandleFunc("PUT /api/v1/users/{id}/search-amount-left", h.SetSearchAmount)
}

// requireAdmin 管理员准入检查
//
// 访问控制中间件只负责身份注入，角色裁决在这里完成；
// 令牌声明之外再回查一次用户目录，账号被降级或删除后旧令牌立即失效
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid user")
		return false
	}
	if !identity.IsAdmin() {
		response.Err(w, http.StatusForbidden, response.CodeUnauthorized, "Permission denied")
		return false
	}

	caller, err := h.store.GetUserByLogin(r.Context(), model.LoginByUserID, identity.UserID)
	if err != nil {
		log.Printf("[user] admin lookup error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return false
	}
	if caller == nil || caller.Role != model.UserRoleAdmin {
		response.Err(w, http.StatusForbidden, response.CodeUnauthorized, "Permission denied")
		return false
	}
	return true
}

// ============================================================================
// 请求类型
// ============================================================================

type createUserRequest struct {
	UserID           string `json:"userId"`
	Password         string `json:"password"`
	Username         string `json:"username"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	SearchAmountLeft *int   `json:"searchAmountLeft"`
}

type updateUserRequest struct {
	UserID           *string `json:"userId"`
	Password         *string `json:"password"`
	SearchAmountLeft *int    `json:"searchAmountLeft"`
}

type setSearchAmountRequest struct {
	SearchAmountLeft *int `json:"searchAmountLeft"`
}

// ============================================================================
// Handlers
// ============================================================================

// ListUsers 分页列出用户，支持关键字与开户状态过滤
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	q := r.URL.Query()
	startPage, _ := strconv.Atoi(q.Get("startPage"))
	if startPage < 1 {
		startPage = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := storage.UserFilter(q.Get("filter"))
	if !filter.Valid() {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "filter")
		return
	}

	users, total, err := h.store.ListUsers(r.Context(), storage.ListUsersQuery{
		Keyword: q.Get("keyword"),
		Filter:  filter,
		Skip:    int64(startPage-1) * int64(limit),
		Limit:   int64(limit),
	})
	if err != nil {
		log.Printf("[listUsers] ListUsers error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	response.OKWithPagination(w, http.StatusOK, users, response.Pagination{
		StartPage:    startPage,
		Limit:        limit,
		TotalPages:   totalPages,
		TotalRecords: total,
	})
}

// GetUser 查询单个用户详情，优先走缓存
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id := r.PathValue("id")

	if cached, err := h.cache.GetUserProfile(r.Context(), id); err != nil {
		log.Printf("[getUser] cache read error: %v", err)
	} else if cached != nil {
		response.OK(w, http.StatusOK, cached)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[getUser] GetUserByID error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if user == nil {
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "User not existed", "id")
		return
	}

	if err := h.cache.SetUserProfile(r.Context(), user); err != nil {
		log.Printf("[getUser] cache write error: %v", err)
	}
	response.OK(w, http.StatusOK, user)
}

// CreateUser 管理员创建可登录的普通用户
// username 缺省取 userId，searchAmountLeft 缺省取默认配额
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	identity := auth.IdentityFrom(r.Context())

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "userId", "password")
		return
	}
	if req.SearchAmountLeft != nil && *req.SearchAmountLeft < 0 {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "searchAmountLeft")
		return
	}

	email := model.NormalizeEmail(req.Email)
	username := req.Username
	if username == "" {
		username = req.UserID
	}

	existing, err := h.store.FindUserConflict(r.Context(), email, req.Phone, username, req.UserID)
	if err != nil {
		log.Printf("[createUser] FindUserConflict error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if existing != nil {
		response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "User existed", "email", "phone", "username", "userId")
		return
	}

	hash, err := auth.HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		log.Printf("[createUser] HashPassword error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	amount := model.DefaultSearchAmount
	if req.SearchAmountLeft != nil {
		amount = *req.SearchAmountLeft
	}

	now := time.Now()
	user := &model.User{
		ID:               model.NewID(),
		UserID:           req.UserID,
		Username:         username,
		Phone:            req.Phone,
		Email:            email,
		PasswordHash:     hash,
		Role:             model.UserRoleUser,
		SearchAmountLeft: amount,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        identity.UserID,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "User existed", "email", "phone", "username", "userId")
			return
		}
		log.Printf("[createUser] CreateUser error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	log.Printf("[createUser] User created by %s: %s (%s)", identity.UserID, user.UserID, user.ID)
	response.OK(w, http.StatusCreated, user)
}

// UpdateUser 管理员更新用户的登录标识、密码或剩余配额
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	identity := auth.IdentityFrom(r.Context())
	id := r.PathValue("id")

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}
	if req.UserID == nil && req.Password == nil && req.SearchAmountLeft == nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters",
			"userId", "password", "searchAmountLeft")
		return
	}
	if req.UserID != nil && *req.UserID == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "userId")
		return
	}
	if req.SearchAmountLeft != nil && *req.SearchAmountLeft < 0 {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "searchAmountLeft")
		return
	}

	upd := storage.UserUpdate{
		UserID:           req.UserID,
		SearchAmountLeft: req.SearchAmountLeft,
		UpdatedBy:        identity.UserID,
	}
	if req.Password != nil {
		if *req.Password == "" {
			response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "password")
			return
		}
		hash, err := auth.HashPassword(*req.Password, h.cfg.BcryptCost)
		if err != nil {
			log.Printf("[updateUser] HashPassword error: %v", err)
			response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
			return
		}
		upd.PasswordHash = &hash
	}

	if err := h.store.UpdateUser(r.Context(), id, upd); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "User not existed", "id")
		case errors.Is(err, storage.ErrDuplicate):
			response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "User existed", "userId")
		default:
			log.Printf("[updateUser] UpdateUser error: %v", err)
			response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		}
		return
	}
	h.invalidateCache(r, id)

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil || user == nil {
		log.Printf("[updateUser] reload error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	response.OK(w, http.StatusOK, user)
}

// SetSearchAmount 管理员直接设置剩余查询配额
func (h *Handler) SetSearchAmount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	identity := auth.IdentityFrom(r.Context())
	id := r.PathValue("id")

	var req setSearchAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}
	if req.SearchAmountLeft == nil || *req.SearchAmountLeft < 0 {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "searchAmountLeft")
		return
	}

	if err := h.store.SetSearchAmount(r.Context(), id, *req.SearchAmountLeft, identity.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "User not existed", "id")
			return
		}
		log.Printf("[setSearchAmount] SetSearchAmount error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	h.invalidateCache(r, id)

	log.Printf("[setSearchAmount] Quota set by %s: %s -> %d", identity.UserID, id, *req.SearchAmountLeft)
	response.OK(w, http.StatusOK, map[string]interface{}{
		"id":               id,
		"searchAmountLeft": *req.SearchAmountLeft,
	})
}

// DeleteUser 软删除用户，记录保留但从所有查询中消失
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	identity := auth.IdentityFrom(r.Context())
	id := r.PathValue("id")

	if err := h.store.SoftDeleteUser(r.Context(), id, identity.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "User not existed", "id")
			return
		}
		log.Printf("[deleteUser] SoftDeleteUser error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	h.invalidateCache(r, id)

	log.Printf("[deleteUser] User deleted by %s: %s", identity.UserID, id)
	response.OK(w, http.StatusOK, map[string]string{"id": id})
}

// invalidateCache 变更后清缓存，失败只记日志
func (h *Handler) invalidateCache(r *http.Request, id string) {
	if err := h.cache.DeleteUserProfile(r.Context(), id); err != nil {
		log.Printf("[user] cache invalidate error: %v", err)
	}
}
