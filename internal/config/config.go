// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
//
// 敏感信息只从环境变量读取，永远不进 YAML：
//   - X_ADMIN_TOKEN / JWT_SECRET_KEY
//   - MONGODB_USER / MONGODB_PASSWORD
//   - DB_PASSWORD / REDIS_AUTH_PASSWORD
//   - ADMIN_USER_ID / ADMIN_PASSWORD
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// DatabaseDriver 用户目录的存储后端
type DatabaseDriver string

const (
	DriverMongo    DatabaseDriver = "mongodb"
	DriverPostgres DatabaseDriver = "postgres"
	DriverSQLite   DatabaseDriver = "sqlite"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Driver DatabaseDriver `yaml:"driver"`

	// MongoDB
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`

	// PostgreSQL
	User    string `yaml:"user"`
	SSLMode string `yaml:"sslmode"`

	// SQLite
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DB      int    `yaml:"db"`
}

// AuthConfig 认证相关的非敏感配置
type AuthConfig struct {
	// PublicPaths 免认证路径，空则使用内置默认值
	PublicPaths []string `yaml:"public_paths"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env     Environment
	Driver  DatabaseDriver
	APIPort string

	// MongoDB
	MongoURI      string
	MongoDatabase string

	// PostgreSQL / SQLite
	DatabaseURL string
	SQLitePath  string

	// Redis（可选的档案缓存）
	RedisEnabled bool
	RedisURL     string

	// 认证
	AdminToken  string
	JWTSecret   string
	TokenTTL    time.Duration
	BcryptCost  int
	PublicPaths []string

	// 初始管理员（可选，启动时自动创建）
	AdminUserID   string
	AdminPassword string
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置并校验必填项
func Load() (*Config, error) {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:           env,
		Driver:        yamlCfg.Database.Driver,
		APIPort:       getEnv("PORT", yamlCfg.Server.Port),
		MongoDatabase: yamlCfg.Database.Name,
		SQLitePath:    yamlCfg.Database.Path,
		RedisEnabled:  yamlCfg.Redis.Enabled,
		AdminToken:    os.Getenv("X_ADMIN_TOKEN"),
		JWTSecret:     os.Getenv("JWT_SECRET_KEY"),
		TokenTTL:      24 * time.Hour,
		BcryptCost:    6,
		PublicPaths:   yamlCfg.Auth.PublicPaths,
		AdminUserID:   os.Getenv("ADMIN_USER_ID"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	if ttl := os.Getenv("JWT_ACCESS_TOKEN_EXPIRES_IN"); ttl != "" {
		seconds, err := strconv.Atoi(ttl)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid JWT_ACCESS_TOKEN_EXPIRES_IN: %q", ttl)
		}
		cfg.TokenTTL = time.Duration(seconds) * time.Second
	}
	if cost := os.Getenv("AUTH_SALT_VALUE"); cost != "" {
		c, err := strconv.Atoi(cost)
		if err != nil || c < 4 || c > 31 {
			return nil, fmt.Errorf("invalid AUTH_SALT_VALUE: %q", cost)
		}
		cfg.BcryptCost = c
	}

	// 连接串
	cfg.MongoURI = buildMongoURI(yamlCfg.Database)
	cfg.DatabaseURL = buildDatabaseURL(yamlCfg.Database, os.Getenv("DB_PASSWORD"))
	cfg.RedisURL = buildRedisURL(yamlCfg.Redis, os.Getenv("REDIS_AUTH_PASSWORD"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 校验必填项，缺失即拒绝启动
func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.AdminToken == "" {
		return fmt.Errorf("X_ADMIN_TOKEN is required")
	}
	switch c.Driver {
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("mongodb host and database name are required")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("postgres connection settings are required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Driver)
	}
	return nil
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server: ServerConfig{Port: "3000"},
		Database: DatabaseConfig{
			Driver:  DriverMongo,
			Host:    "localhost",
			Port:    27017,
			Name:    "accounts_admin",
			User:    "accounts",
			SSLMode: "disable",
			Path:    "accounts_admin.db",
		},
		Redis: RedisConfig{Enabled: false, Host: "localhost", Port: 6379, DB: 0},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// buildMongoURI 构建 MongoDB 连接字符串
// MONGODB_URI 整串覆盖优先，其次由 host/port 加可选账号拼装
func buildMongoURI(db DatabaseConfig) string {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		return uri
	}
	user := os.Getenv("MONGODB_USER")
	password := os.Getenv("MONGODB_PASSWORD")
	if user != "" && password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", user, password, db.Host, db.Port)
	}
	return fmt.Sprintf("mongodb://%s:%d", db.Host, db.Port)
}

// buildDatabaseURL 构建 PostgreSQL 连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
}

// buildRedisURL 构建 Redis 连接字符串
func buildRedisURL(redis RedisConfig, password string) string {
	if password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", password, redis.Host, redis.Port, redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码与密钥）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, Mongo: %s, DB: %s, Redis: %s}",
		c.Env, c.Driver, maskPassword(c.MongoURI), maskPassword(c.DatabaseURL), maskPassword(c.RedisURL))
}

// maskPassword 隐藏连接串中的密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:/]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}
