package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/apperr"
)

// DefaultAPIBase 飞书开放平台接口地址
const DefaultAPIBase = "https://open.feishu.cn/open-apis"

// Client 飞书多维表格客户端
type Client struct {
	httpClient *http.Client
	apiBase    string
	pageSize   int
	tokens     *TokenCache
	logger     *zap.Logger
}

// NewClient 创建飞书客户端，pageSize <= 0 时使用服务端默认分页大小
func NewClient(apiBase string, timeout time.Duration, pageSize int, logger *zap.Logger) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiBase:  strings.TrimRight(apiBase, "/"),
		pageSize: pageSize,
		logger:   logger,
	}
	c.tokens = NewTokenCache(c.exchange, logger)
	return c
}

// Tokens 返回凭证槽位与 token 缓存
func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

// Exchange 直接用给定凭证换取 token，不读写缓存，用于连接测试
func (c *Client) Exchange(ctx context.Context, creds Credentials) (string, error) {
	if creds.AppID == "" || creds.AppSecret == "" {
		return "", apperr.Validation("test connection", "app_id and app_secret are required")
	}
	token, _, err := c.exchange(ctx, creds)
	return token, err
}

// exchange 请求 tenant_access_token
func (c *Client) exchange(ctx context.Context, creds Credentials) (string, time.Duration, error) {
	const op = "get tenant access token"

	payload, err := json.Marshal(creds)
	if err != nil {
		return "", 0, fmt.Errorf("%s: encode body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/auth/v3/tenant_access_token/internal", bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	status, body, err := c.send(op, req)
	if err != nil {
		return "", 0, err
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		if !isSuccess(status) {
			return "", 0, apperr.UpstreamStatus(op, status, string(body))
		}
		return "", 0, apperr.Protocol(op, "", err)
	}

	if tokenResp.Code != 0 {
		c.logger.Warn("Feishu token exchange rejected",
			zap.Int("code", tokenResp.Code),
			zap.String("msg", tokenResp.Msg))
		return "", 0, apperr.Upstream(op, tokenResp.Code, tokenResp.Msg)
	}

	if tokenResp.TenantAccessToken == nil || *tokenResp.TenantAccessToken == "" {
		return "", 0, apperr.Protocol(op, "tenant_access_token", nil)
	}

	ttl := defaultTokenTTL
	if tokenResp.Expire != nil {
		ttl = time.Duration(*tokenResp.Expire) * time.Second
	}

	return *tokenResp.TenantAccessToken, ttl, nil
}

// doRequest 执行带认证的请求，返回状态码与响应体
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, payload any) (int, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", op, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	return c.send(op, req)
}

// send 发送请求并读取完整响应体
func (c *Client) send(op string, req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperr.Network(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apperr.Network(op, err)
	}

	return resp.StatusCode, body, nil
}

// parseResponse 解析响应包，业务错误码优先于 HTTP 状态码
func parseResponse(op string, status int, body []byte) (json.RawMessage, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if !isSuccess(status) {
			return nil, apperr.UpstreamStatus(op, status, string(body))
		}
		return nil, apperr.Protocol(op, "", err)
	}

	if apiResp.Code != 0 {
		return nil, apperr.Upstream(op, apiResp.Code, apiResp.Msg)
	}

	if !isSuccess(status) {
		return nil, apperr.UpstreamStatus(op, status, string(body))
	}

	return apiResp.Data, nil
}

// decodeData 解码 data 字段，数字保留为 json.Number
func decodeData(op string, data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return apperr.Protocol(op, "data", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return apperr.Protocol(op, "data", err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
