// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accounts-admin/internal/apiserver/auth"
	"accounts-admin/internal/apiserver/server"
	"accounts-admin/internal/config"
	"accounts-admin/internal/shared/cache"
	redisc "accounts-admin/internal/shared/cache/redis"
	"accounts-admin/internal/shared/storage"
	"accounts-admin/internal/shared/storage/driver/postgres"
	"accounts-admin/internal/shared/storage/driver/sqlite"
	"accounts-admin/internal/shared/storage/mongostore"
	"accounts-admin/internal/shared/storage/repository"
	"accounts-admin/pkg/logging"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换数据库和 Redis）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Default("api-server")
	logger.Info("Starting API Server", "env", string(cfg.Env), "config", cfg.String())

	// 初始化用户目录存储
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Driver, err)
	}
	defer store.Close()
	logger.Info("Connected to database", "driver", string(cfg.Driver))

	// 初始化档案缓存（可选，连不上直接拒绝启动而不是静默降级）
	var profileCache cache.Cache = cache.NewNoOpCache()
	if cfg.RedisEnabled {
		rc, err := redisc.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rc.Close()
		profileCache = rc
		logger.Info("Connected to Redis")
	}

	authCfg := auth.Config{
		JWTSecret:   cfg.JWTSecret,
		AdminToken:  cfg.AdminToken,
		TokenTTL:    cfg.TokenTTL,
		BcryptCost:  cfg.BcryptCost,
		PublicPaths: cfg.PublicPaths,
	}

	// 确保初始管理员存在
	if err := auth.EnsureAdminUser(store, authCfg, cfg.AdminUserID, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}

	h := server.NewHandler(store, profileCache, authCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.Info("API Server listening", "port", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openStore 按配置的驱动打开用户目录存储
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return mongostore.NewStore(cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewStore(db, dialect), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewStore(db, dialect), nil
	}
	return nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
}
