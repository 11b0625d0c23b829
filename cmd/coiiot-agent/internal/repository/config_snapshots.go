package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_config_snapshots (
	agent_id   BIGINT      NOT NULL,
	version    TEXT        NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (agent_id, version)
);
CREATE TABLE IF NOT EXISTS device_config_snapshots (
	config_id     BIGINT      PRIMARY KEY,
	device_id     BIGINT      NOT NULL,
	created_at    TIMESTAMPTZ,
	device_config JSONB       NOT NULL,
	fetched_at    TIMESTAMPTZ NOT NULL
);
`

// ConfigSnapshotRepository 记录 agent 拉取过的配置版本和设备配置，
// 重启后可以判断平台上的配置是否已经变化
type ConfigSnapshotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConfigSnapshotRepository 创建配置快照仓库
func NewConfigSnapshotRepository(db *sql.DB, logger *zap.Logger) *ConfigSnapshotRepository {
	return &ConfigSnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 建表（已存在则跳过）
func (r *ConfigSnapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create config snapshot tables: %w", err)
	}
	return nil
}

// LatestVersion 最近一次拉取的配置版本，没有记录时返回空字符串
func (r *ConfigSnapshotRepository) LatestVersion(ctx context.Context, agentID int64) (string, error) {
	query := `
		SELECT version
		FROM agent_config_snapshots
		WHERE agent_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	var version string
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest config version: %w", err)
	}
	return version, nil
}

// RecordConfig 记录一次配置拉取，同一版本重复拉取只更新时间
func (r *ConfigSnapshotRepository) RecordConfig(ctx context.Context, cfg models.Config, fetchedAt time.Time) error {
	query := `
		INSERT INTO agent_config_snapshots (agent_id, version, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, version) DO UPDATE SET fetched_at = EXCLUDED.fetched_at
	`

	if _, err := r.db.ExecContext(ctx, query, cfg.Agent.ID, cfg.Version, fetchedAt); err != nil {
		return fmt.Errorf("failed to record config version %s: %w", cfg.Version, err)
	}

	r.logger.Debug("Config snapshot recorded",
		zap.Int64("agent_id", cfg.Agent.ID),
		zap.String("version", cfg.Version),
	)
	return nil
}

// RecordDeviceConfig 保存设备配置快照。快照不可变，同一 config_id 只写入一次
func (r *ConfigSnapshotRepository) RecordDeviceConfig(ctx context.Context, cfg models.VersionedDeviceConfig, fetchedAt time.Time) error {
	payload, err := json.Marshal(cfg.DeviceConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal device config %d: %w", cfg.ID, err)
	}

	var createdAt sql.NullTime
	if cfg.CreatedAt != nil {
		createdAt = sql.NullTime{Time: *cfg.CreatedAt, Valid: true}
	}

	query := `
		INSERT INTO device_config_snapshots (config_id, device_id, created_at, device_config, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (config_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, cfg.ID, cfg.DeviceID, createdAt, payload, fetchedAt); err != nil {
		return fmt.Errorf("failed to record device config %d: %w", cfg.ID, err)
	}
	return nil
}
