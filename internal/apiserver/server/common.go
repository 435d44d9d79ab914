// Package server 路由配置与核心基础设施
//
// 本包是所有 HTTP API 的入口，负责：
//   - 路由请求到各领域独立包（auth/user/search）
//   - 管理存储层与缓存层连接
//   - Prometheus 指标与通用中间件
//
// 文件组织：
//   - common.go: Handler 定义与健康检查、调试接口
//   - handler.go: 路由配置
//   - metrics.go: Prometheus 指标
package server

import (
	"net"
	"net/http"

	"accounts-admin/internal/apiserver/auth"
	"accounts-admin/internal/apiserver/response"
	"accounts-admin/internal/shared/cache"
	"accounts-admin/internal/shared/storage"
)

// Handler API 处理器
//
// 依赖接口说明（接口隔离原则）：
//   - store: 权威用户目录与查询记录存储
//   - profileCache: 用户档案缓存（可为 nil，自动降级为空实现）
type Handler struct {
	store        storage.Store
	profileCache cache.UserProfileCache
	authConfig   auth.Config
	metrics      *Metrics
}

// NewHandler 创建 Handler 实例
// 存储与缓存都包上指标埋点，经由 Handler 的所有访问自动计数
func NewHandler(store storage.Store, profileCache cache.UserProfileCache, authCfg auth.Config) *Handler {
	if profileCache == nil {
		profileCache = cache.NewNoOpCache()
	}
	metrics := NewMetrics("accounts")
	return &Handler{
		store:        instrumentStore(store, metrics),
		profileCache: instrumentCache(profileCache, metrics),
		authConfig:   authCfg,
		metrics:      metrics,
	}
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// Health 健康检查接口
//
// 路由: GET / 与 GET /healthcheck
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, http.StatusOK, nil)
}

// Debug 调试接口，回显请求元信息
//
// 路由: GET /api/v1/debug
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	response.OK(w, http.StatusOK, map[string]interface{}{
		"method":    r.Method,
		"path":      r.URL.Path,
		"host":      r.Host,
		"userAgent": r.UserAgent(),
	})
}

// DebugClientIP 调试接口，返回服务端视角的客户端 IP
//
// 路由: GET /api/v1/debug-limit-ip
func (h *Handler) DebugClientIP(w http.ResponseWriter, r *http.Request) {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}
	response.OK(w, http.StatusOK, map[string]string{"ip": ip})
}
