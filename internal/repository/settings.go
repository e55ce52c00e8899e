package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/answerdesk/internal/apperr"
)

// SettingsRepository 设置项仓库
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get 读取设置项的 JSON 值，不存在时返回 not_found
func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM settings WHERE key = $1`

	var value []byte
	err := r.db.Pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("get setting", key)
		}
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Put 写入设置项
func (r *SettingsRepository) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Pool.Exec(ctx, query, key, value, time.Now()); err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
