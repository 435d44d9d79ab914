package auth

import (
	"log"
	"net/http"
	"strings"

	"accounts-admin/internal/apiserver/response"
	"accounts-admin/internal/shared/model"
)

// accessTokenCookie 浏览器端令牌 Cookie 名（Bearer 头缺失时的回退来源）
const accessTokenCookie = "_access_token"

// isPublicPath 判断路径是否在免认证白名单内（精确匹配）
// 白名单来自配置而非硬编码，不同部署可以增减公开路由
func isPublicPath(cfg Config, path string) bool {
	paths := cfg.PublicPaths
	if len(paths) == 0 {
		paths = DefaultPublicPaths
	}
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	return false
}

// extractToken 提取访问令牌：优先 Authorization: Bearer 头，回退 _access_token Cookie
// 找不到返回空串，表示请求以未认证身份继续
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	if c, err := r.Cookie(accessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware 创建认证守卫中间件
//
// 白名单路径直接放行；无令牌的请求以未认证身份放行（下游存在公开路由，
// 受保护的处理函数自行拒绝未认证调用）；携带非法令牌的请求在此短路为 401，
// 处理函数不会执行。守卫不做角色判断，特权操作由各处理函数独立复查。
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(cfg, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				// 未认证继续：是否拒绝由各处理函数决定
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ParseToken(cfg, token)
			if err != nil {
				log.Printf("[auth] token verify error: %v", err)
				response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
				return
			}

			identity := &Identity{
				UserID: claims.Subject,
				Role:   model.UserRole(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// isValidAdminToken 校验静态管理密钥（X-Admin-Token 头）
// 配置未设置密钥时一律拒绝
func isValidAdminToken(r *http.Request, adminToken string) bool {
	return adminToken != "" && r.Header.Get("X-Admin-Token") == adminToken
}
