package models

import "time"

// Setting 键值形式保存的设置项，Value 为 JSON
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     []byte    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// 设置项的键
const (
	SettingFeishu = "feishu"
	SettingAI     = "ai"
)

// TableConfig 一张被管理的数据表
type TableConfig struct {
	Name     string `json:"name"` // 如 "Answers"
	AppToken string `json:"app_token"`
	TableID  string `json:"table_id"`
}

// FeishuSettings 飞书应用与数据表配置
type FeishuSettings struct {
	AppID     string        `json:"app_id"`
	AppSecret string        `json:"app_secret"`
	Tables    []TableConfig `json:"tables"`
}

// AISettings AI 服务配置
type AISettings struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}
