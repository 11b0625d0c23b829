// Package database 创建 PostgreSQL 连接（lib/pq 驱动）。
//
// agent 只在启动时写入少量配置快照，连接池默认很小，空闲连接会被尽快回收。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/vk-cs/iot-go-agent-sdk/config"
)

// 未配置时的连接池参数
const (
	DefaultMaxConns        = 2
	DefaultMaxIdle         = 1
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = time.Minute
	DefaultConnectTimeout  = 5 * time.Second
)

// NewPostgresDB 打开连接池并 Ping 一次，失败时关闭已打开的连接池
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsnCfg := *cfg
	if dsnCfg.ConnectTimeout <= 0 {
		dsnCfg.ConnectTimeout = DefaultConnectTimeout
	}

	db, err := sql.Open("postgres", dsnCfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ConfigurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// ConfigurePool 按 cfg 设置连接池，零值字段使用默认值。MaxIdle 不会超过 MaxConns
func ConfigurePool(db *sql.DB, cfg *config.DatabaseConfig) {
	maxConns := orDefault(cfg.MaxConns, DefaultMaxConns)
	maxIdle := orDefault(cfg.MaxIdle, DefaultMaxIdle)
	if maxIdle > maxConns {
		maxIdle = maxConns
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, DefaultConnMaxLifetime))
	db.SetConnMaxIdleTime(orDefault(cfg.ConnMaxIdleTime, DefaultConnMaxIdleTime))
}

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Close 关闭数据库连接，db 为 nil 时什么也不做
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
