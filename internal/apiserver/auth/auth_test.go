package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"accounts-admin/internal/shared/model"
)

// signExpiredToken 用同一密钥直接签一个已过期的令牌
func signExpiredToken(t *testing.T, secret, userID string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: string(model.UserRoleUser),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	return token
}

// TestHashPassword_RoundTrip 测试密码哈希与校验
func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", DefaultBcryptCost)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("哈希不应等于明文")
	}

	if !CheckPassword("s3cret", hash) {
		t.Error("正确密码应通过校验")
	}
	if CheckPassword("wrong", hash) {
		t.Error("错误密码不应通过校验")
	}
	if CheckPassword("s3cret", "") {
		t.Error("空哈希（未开通凭据）不应通过校验")
	}
}

// TestHashPassword_InvalidCost 测试非法工作因子回退默认值
func TestHashPassword_InvalidCost(t *testing.T) {
	hash, err := HashPassword("s3cret", 0)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Error("回退默认工作因子后应可正常校验")
	}
}

// TestSignToken_ParseToken 测试令牌签发与解析
func TestSignToken_ParseToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret", TokenTTL: time.Hour}

	token, err := SignToken(cfg, "alice", model.UserRoleAdmin)
	if err != nil {
		t.Fatalf("SignToken error: %v", err)
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "alice")
	}
	if claims.Role != string(model.UserRoleAdmin) {
		t.Errorf("Role = %q, want %q", claims.Role, model.UserRoleAdmin)
	}
}

// TestSignToken_EmptySecret 测试空密钥拒绝签发
func TestSignToken_EmptySecret(t *testing.T) {
	_, err := SignToken(Config{}, "alice", model.UserRoleUser)
	if !errors.Is(err, ErrEmptySecret) {
		t.Errorf("err = %v, want ErrEmptySecret", err)
	}
}

// TestParseToken_ErrorKinds 测试令牌错误归类
func TestParseToken_ErrorKinds(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret", TokenTTL: time.Hour}

	t.Run("过期令牌", func(t *testing.T) {
		token := signExpiredToken(t, cfg.JWTSecret, "alice")
		if _, err := ParseToken(cfg, token); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("err = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("签名不匹配", func(t *testing.T) {
		other := Config{JWTSecret: "other-secret", TokenTTL: time.Hour}
		token, err := SignToken(other, "alice", model.UserRoleUser)
		if err != nil {
			t.Fatalf("SignToken error: %v", err)
		}
		if _, err := ParseToken(cfg, token); !errors.Is(err, ErrTokenSignature) {
			t.Errorf("err = %v, want ErrTokenSignature", err)
		}
	})

	t.Run("无法解析", func(t *testing.T) {
		if _, err := ParseToken(cfg, "not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("err = %v, want ErrTokenMalformed", err)
		}
	})
}

// TestSignToken_DefaultTTL 测试未配置 TTL 时回退默认有效期
func TestSignToken_DefaultTTL(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}
	token, err := SignToken(cfg, "alice", model.UserRoleUser)
	if err != nil {
		t.Fatalf("SignToken error: %v", err)
	}
	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Errorf("默认有效期应接近 24h，实际 %v", ttl)
	}
}
