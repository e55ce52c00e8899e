package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/apperr"
)

// 固定的请求参数
const (
	Temperature = 0.7
	MaxTokens   = 2000
)

// Config AI 服务配置
type Config struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error"`
}

type chatChoice struct {
	Message      *Message `json:"message"`
	FinishReason string   `json:"finish_reason"`
}

type chatError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

// Client OpenAI 兼容的对话补全客户端，配置槽位可随时替换
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	config *Config
}

// NewClient 创建 AI 客户端
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetConfig 保存 AI 配置
func (c *Client) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = &cfg
}

// Config 返回当前配置
func (c *Client) Config() (Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config == nil {
		return Config{}, false
	}
	return *c.config, true
}

// Complete 发送单条用户消息并返回第一条回复
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "chat completion"

	cfg, ok := c.Config()
	if !ok {
		return "", apperr.ConfigMissing(op, "ai config")
	}

	payload, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}

	url := strings.TrimRight(cfg.APIBase, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Network(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Network(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("AI request failed",
			zap.String("model", cfg.Model),
			zap.Int("status", resp.StatusCode))
		return "", apperr.UpstreamStatus(op, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", apperr.Protocol(op, "", err)
	}

	if chatResp.Error != nil {
		return "", apperr.Upstream(op, 0, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return "", apperr.Protocol(op, "choices[0].message", nil)
	}

	content := chatResp.Choices[0].Message.Content
	c.logger.Debug("AI completion finished",
		zap.String("model", cfg.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("reply_len", len(content)))

	return content, nil
}
