package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"accounts-admin/internal/apiserver/response"
	"accounts-admin/internal/shared/model"
	"accounts-admin/internal/shared/storage"
)

// UserStore 认证流程依赖的用户目录接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByLogin(ctx context.Context, kind model.LoginKind, value string) (*model.User, error)
	FindUserConflict(ctx context.Context, email, phone, username, userID string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash, updatedBy string) error
}

// Recorder 登录结果指标上报
type Recorder interface {
	RecordSignIn(result string)
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store    UserStore
	cfg      Config
	recorder Recorder
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, cfg Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// SetRecorder 设置指标上报器，nil 时不上报
func (h *Handler) SetRecorder(r Recorder) {
	h.recorder = r
}

func (h *Handler) recordSignIn(result string) {
	if h.recorder != nil {
		h.recorder.RecordSignIn(result)
	}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sign-up", h.SignUp)
	mux.HandleFunc("POST /api/v1/admin/sign-up", h.AdminSignUp)
	mux.HandleFunc("POST /api/v1/sign-in", h.SignIn)
	mux.HandleFunc("POST /api/v1/change-password", h.ChangePassword)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type signUpRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

type adminSignUpRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type signInRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

type signInResponse struct {
	AccessToken string         `json:"accessToken"`
	UserID      string         `json:"userId"`
	Username    string         `json:"username"`
	Email       string         `json:"email,omitempty"`
	Role        model.UserRole `json:"role"`
}

// ============================================================================
// Handlers
// ============================================================================

// SignUp 用户注册（公开）
// 只建立档案，不开通登录凭据；角色固定为普通用户
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}

	if req.Username == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "username")
		return
	}
	if req.Phone == "" && req.Email == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "phone", "email")
		return
	}
	if req.Email != "" && !isValidEmail(req.Email) {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "email")
		return
	}

	email := model.NormalizeEmail(req.Email)

	// 创建前检查任一标识是否已被占用
	existing, err := h.store.FindUserConflict(r.Context(), email, req.Phone, req.Username, "")
	if err != nil {
		log.Printf("[signUp] FindUserConflict error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if existing != nil {
		response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "User existed", "email", "phone", "username")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:               model.NewID(),
		Username:         req.Username,
		Phone:            req.Phone,
		Email:            email,
		Role:             model.UserRoleUser,
		SearchAmountLeft: model.DefaultSearchAmount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		// 并发注册撞到唯一索引：按冲突而非服务器错误上报
		if errors.Is(err, storage.ErrDuplicate) {
			response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "User existed", "email", "phone", "username")
			return
		}
		log.Printf("[signUp] CreateUser error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	log.Printf("[signUp] User profile created: %s (%s)", user.Username, user.ID)
	response.OK(w, http.StatusCreated, user)
}

// AdminSignUp 创建管理员账号
// 由带外下发的静态管理密钥（X-Admin-Token）保护，不走用户会话
func (h *Handler) AdminSignUp(w http.ResponseWriter, r *http.Request) {
	if !isValidAdminToken(r, h.cfg.AdminToken) {
		response.Err(w, http.StatusForbidden, response.CodeUnauthorized, "Permission denied")
		return
	}

	var req adminSignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}

	if req.Username == "" || req.Phone == "" || req.Email == "" || req.UserID == "" || req.Password == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters",
			"phone", "email", "username", "userId", "password")
		return
	}
	if !isValidEmail(req.Email) {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "email")
		return
	}

	email := model.NormalizeEmail(req.Email)

	existing, err := h.store.FindUserConflict(r.Context(), email, req.Phone, req.Username, req.UserID)
	if err != nil {
		log.Printf("[adminSignUp] FindUserConflict error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if existing != nil {
		response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "Admin existed", "email", "phone", "username")
		return
	}

	hash, err := HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		log.Printf("[adminSignUp] HashPassword error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:               model.NewID(),
		UserID:           req.UserID,
		Username:         req.Username,
		Phone:            req.Phone,
		Email:            email,
		PasswordHash:     hash,
		Role:             model.UserRoleAdmin,
		SearchAmountLeft: model.DefaultSearchAmount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			response.Err(w, http.StatusBadRequest, response.CodeAlreadyExist, "Admin existed", "email", "phone", "username")
			return
		}
		log.Printf("[adminSignUp] CreateUser error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	log.Printf("[adminSignUp] Admin created: %s (%s)", user.UserID, user.ID)
	response.OK(w, http.StatusCreated, user)
}

// SignIn 登录并签发会话令牌（公开）
// 登录标识在流程入口处一次性确定：userId > email > phone
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}

	kind, value := model.ResolveLogin(req.UserID, req.Email, req.Phone)
	if kind == "" || req.Password == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "userId", "password")
		return
	}

	user, err := h.store.GetUserByLogin(r.Context(), kind, value)
	if err != nil {
		log.Printf("[signIn] GetUserByLogin error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if user == nil {
		h.recordSignIn("failure")
		response.Err(w, http.StatusBadRequest, response.CodeNotFound, "User not existed", "phone", "email")
		return
	}

	// 凭据未开通时哈希为空，与密码错误走同一分支
	if !CheckPassword(req.Password, user.PasswordHash) {
		h.recordSignIn("failure")
		response.Err(w, http.StatusBadRequest, response.CodeBadRequest, "Password does not match", "password")
		return
	}

	accessToken, err := SignToken(h.cfg, user.UserID, user.Role)
	if err != nil {
		log.Printf("[signIn] SignToken error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	h.recordSignIn("success")
	log.Printf("[signIn] User signed in: %s", user.UserID)
	response.OK(w, http.StatusOK, signInResponse{
		AccessToken: accessToken,
		UserID:      user.UserID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
	})
}

// ChangePassword 修改自己的密码（需要会话）
// 除有效会话外还要求提供在档手机号或邮箱作为二次确认，
// 与在档记录不一致时拒绝且不改密码
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid request body")
		return
	}

	if req.NewPassword == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "newPassword")
		return
	}
	if req.Phone == "" && req.Email == "" {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "phone", "email")
		return
	}
	if req.Email != "" && !isValidEmail(req.Email) {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid parameters", "email")
		return
	}

	identity := IdentityFrom(r.Context())
	if identity == nil {
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid user")
		return
	}

	user, err := h.store.GetUserByLogin(r.Context(), model.LoginByUserID, identity.UserID)
	if err != nil {
		log.Printf("[changePassword] GetUserByLogin error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}
	if user == nil {
		response.Err(w, http.StatusBadRequest, response.CodeNotFound, "Invalid user", "userId")
		return
	}

	// 二次确认：提交的联系方式必须与在档记录一致
	if (req.Email != "" && user.Email != model.NormalizeEmail(req.Email)) ||
		(req.Phone != "" && user.Phone != req.Phone) {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParameter, "Invalid user", "userId", "email", "phone")
		return
	}

	hash, err := HashPassword(req.NewPassword, h.cfg.BcryptCost)
	if err != nil {
		log.Printf("[changePassword] HashPassword error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hash, identity.UserID); err != nil {
		log.Printf("[changePassword] UpdateUserPassword error: %v", err)
		response.Err(w, http.StatusInternalServerError, response.CodeServerError, "Internal Server Error")
		return
	}

	log.Printf("[changePassword] Password rotated: %s", user.UserID)
	response.OK(w, http.StatusOK, map[string]string{
		"id":     user.ID,
		"userId": user.UserID,
		"phone":  user.Phone,
		"email":  user.Email,
	})
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保初始管理员存在（启动时调用）
// 配置了 ADMIN_USER_ID/ADMIN_PASSWORD 且目录中不存在该账号时自动创建
func EnsureAdminUser(store UserStore, cfg Config, adminUserID, adminPassword string) error {
	if adminUserID == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := store.GetUserByLogin(ctx, model.LoginByUserID, adminUserID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("[auth] Admin user already exists: %s (%s)", adminUserID, existing.ID)
		return nil
	}

	hash, err := HashPassword(adminPassword, cfg.BcryptCost)
	if err != nil {
		return err
	}

	now := time.Now()
	user := &model.User{
		ID:               model.NewID(),
		UserID:           adminUserID,
		Username:         adminUserID,
		PasswordHash:     hash,
		Role:             model.UserRoleAdmin,
		SearchAmountLeft: model.DefaultSearchAmount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminUserID, user.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
