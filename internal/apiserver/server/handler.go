package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"accounts-admin/internal/apiserver/auth"
	"accounts-admin/internal/apiserver/search"
	"accounts-admin/internal/apiserver/user"
	"accounts-admin/pkg/logging"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET / 以及 GET /healthcheck - 服务健康检查
//
// 认证 (Auth):
//   - POST /api/v1/sign-up          - 用户注册（公开）
//   - POST /api/v1/admin/sign-up    - 创建管理员（X-Admin-Token）
//   - POST /api/v1/sign-in          - 登录，签发令牌（公开）
//   - POST /api/v1/change-password  - 修改密码（需要会话）
//
// 用户管理 (User，仅管理员):
//   - GET    /api/v1/users                         - 分页列出用户
//   - POST   /api/v1/users                         - 创建用户
//   - GET    /api/v1/users/{id}                    - 用户详情
//   - PUT    /api/v1/users/{id}                    - 更新用户
//   - DELETE /api/v1/users/{id}                    - 软删除用户
//   - PUT    /api/v1/users/{id}/search-amount-left - 设置剩余配额
//
// 命理查询 (Search):
//   - POST /api/v1/users/search-numerology      - 提交查询（需要会话）
//   - GET  /api/v1/users/{id}/search-numerology - 查询记录（仅管理员）
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /{$}", h.Health)
	mux.HandleFunc("GET /healthcheck", h.Health)

	// 调试接口
	mux.HandleFunc("GET /api/v1/debug", h.Debug)
	mux.HandleFunc("GET /api/v1/debug-limit-ip", h.DebugClientIP)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// Auth 接口
	authHandler := auth.NewHandler(h.store, h.authConfig)
	authHandler.SetRecorder(h.metrics)
	authHandler.RegisterRoutes(mux)

	// User 管理接口
	userHandler := user.NewHandler(h.store, h.profileCache, h.authConfig)
	userHandler.RegisterRoutes(mux)

	// 命理查询接口
	searchHandler := search.NewHandler(h.store, h.profileCache)
	searchHandler.SetRecorder(h.metrics)
	searchHandler.RegisterRoutes(mux)

	// 应用指标中间件
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用访问控制中间件
	authedHandler := auth.Middleware(h.authConfig)(apiHandler)

	// 应用请求标识与响应耗时中间件
	tracedHandler := requestIDMiddleware(responseTimeMiddleware(authedHandler))

	// 应用 CORS 中间件
	return corsMiddleware(tracedHandler)
}

// requestIDMiddleware 为每个请求分配标识
// 入站请求已带 X-Request-Id 时沿用，响应头回写同一标识，
// 标识同时写入上下文供日志关联
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-Id", id)

		ctx := context.WithValue(r.Context(), logging.TraceIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID 生成请求标识
func newRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// responseTimeMiddleware 在响应头写入处理耗时
// 响应头必须在状态码写出前落定，耗时在首次 WriteHeader 时结算
func responseTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&timedResponseWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

type timedResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *timedResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.Header().Set("X-Response-Time", fmt.Sprintf("%dms", time.Since(w.start).Milliseconds()))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timedResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
