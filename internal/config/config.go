package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Database，为空时不持久化
	DatabaseURL string

	// Feishu
	FeishuAPIBase   string
	FeishuPageSize  int
	FeishuAppID     string
	FeishuAppSecret string

	// AI
	AIAPIBase string
	AIAPIKey  string
	AIModel   string

	// 外部请求超时
	HTTPTimeout time.Duration

	// 默认账号，数据库中没有用户时创建
	AdminUsername       string
	AdminPassword       string
	DefaultUsername     string
	DefaultUserPassword string
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:      getEnv("PORT", "4000"),
		Debug:           getEnvBool("DEBUG", false),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		FeishuAPIBase:   getEnv("FEISHU_API_BASE", "https://open.feishu.cn/open-apis"),
		FeishuPageSize:  getEnvInt("FEISHU_PAGE_SIZE", 0),
		FeishuAppID:     getEnv("FEISHU_APP_ID", ""),
		FeishuAppSecret: getEnv("FEISHU_APP_SECRET", ""),
		AIAPIBase:       getEnv("AI_API_BASE", ""),
		AIAPIKey:        getEnv("AI_API_KEY", ""),
		AIModel:         getEnv("AI_MODEL", ""),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 60*time.Second),
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "admin123"),

		DefaultUsername:     getEnv("DEFAULT_USER_USERNAME", "user"),
		DefaultUserPassword: getEnv("DEFAULT_USER_PASSWORD", "user123"),
	}

	return cfg, nil
}

// HasFeishuCredentials 是否通过环境变量提供了飞书凭证
func (c *Config) HasFeishuCredentials() bool {
	return c.FeishuAppID != "" && c.FeishuAppSecret != ""
}

// HasAIConfig 是否通过环境变量提供了 AI 配置
func (c *Config) HasAIConfig() bool {
	return c.AIAPIBase != "" && c.AIAPIKey != "" && c.AIModel != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
