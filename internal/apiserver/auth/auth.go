// Package auth 用户认证：JWT 令牌管理、密码哈希、HTTP 守卫中间件与认证流程
package auth

import (
	"context"
	"errors"
	"time"

	"accounts-admin/internal/shared/model"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// contextKey context 键类型
type contextKey string

const ctxKeyIdentity contextKey = "identity"

// Identity 从 JWT 解析出的调用方身份
type Identity struct {
	UserID string
	Role   model.UserRole
}

// IsAdmin 令牌声明的角色是否为管理员
// 特权操作除检查此处外还必须回查用户目录确认角色未被撤销
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == model.UserRoleAdmin
}

// Config 认证配置
type Config struct {
	JWTSecret   string        // JWT 签名密钥，启动时必须非空
	AdminToken  string        // X-Admin-Token 静态管理密钥
	TokenTTL    time.Duration // 访问令牌有效期，默认 24h
	BcryptCost  int           // bcrypt 工作因子，默认 DefaultBcryptCost
	PublicPaths []string      // 免认证路径白名单（精确匹配），由配置下发
}

const (
	// DefaultTokenTTL 访问令牌默认有效期（1 天）
	DefaultTokenTTL = 24 * time.Hour
	// DefaultBcryptCost bcrypt 默认工作因子
	DefaultBcryptCost = 6
)

// DefaultPublicPaths 默认免认证路径
var DefaultPublicPaths = []string{
	"/",
	"/healthcheck",
	"/metrics",
	"/api/v1/debug",
	"/api/v1/debug-limit-ip",
	"/api/v1/sign-up",
	"/api/v1/sign-in",
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
// cost <= 0 时使用默认工作因子
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// CheckPassword 验证密码
// bcrypt 内部为常数时间比较；任何不匹配或哈希缺失均返回 false
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// 令牌验证错误类型
var (
	// ErrEmptySecret 签名密钥为空，属配置错误，绝不能退化为无签名令牌
	ErrEmptySecret = errors.New("jwt secret is empty")
	// ErrTokenExpired 令牌已过期
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature 签名不匹配
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenMalformed 令牌无法解析
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// SignToken 签发访问令牌
// Subject 为登录标识（userId），Role 为角色声明
func SignToken(cfg Config, userID string, role model.UserRole) (string, error) {
	if cfg.JWTSecret == "" {
		return "", ErrEmptySecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT
// 错误归类：过期 > 签名不匹配 > 无法解析
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrEmptySecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignature
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrTokenSignature):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithIdentity 将调用方身份注入 context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFrom 从 context 获取调用方身份，未认证返回 nil
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return id
}
