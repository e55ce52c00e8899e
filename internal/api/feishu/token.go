package feishu

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/apperr"
)

const (
	// refreshAhead 距离过期不足该时长即视为失效
	refreshAhead = 60 * time.Second
	// defaultTokenTTL 服务端未返回 expire 时使用
	defaultTokenTTL = 7200 * time.Second
)

// CachedToken 缓存的 tenant_access_token
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid 在 now 时刻是否仍可使用
func (t *CachedToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt.Add(-refreshAhead))
}

// ExchangeFunc 用凭证换取 token，返回 token 与有效期
type ExchangeFunc func(ctx context.Context, creds Credentials) (string, time.Duration, error)

// TokenCache 凭证槽位与 token 缓存
//
// 锁只在读写槽位时持有，不跨越网络请求。凭证每次更新都会递增 generation，
// 旧 generation 下发起的换取结果不会写回缓存。并发未命中时可能重复换取。
type TokenCache struct {
	mu         sync.Mutex
	creds      *Credentials
	token      *CachedToken
	generation uint64

	exchange ExchangeFunc
	now      func() time.Time
	logger   *zap.Logger
}

// NewTokenCache 创建 token 缓存
func NewTokenCache(exchange ExchangeFunc, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		exchange: exchange,
		now:      time.Now,
		logger:   logger,
	}
}

// SetCredentials 保存凭证并清除已缓存的 token
func (tc *TokenCache) SetCredentials(creds Credentials) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.creds = &creds
	tc.token = nil
	tc.generation++
}

// Credentials 返回当前凭证
func (tc *TokenCache) Credentials() (Credentials, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.creds == nil {
		return Credentials{}, false
	}
	return *tc.creds, true
}

// Invalidate 丢弃缓存的 token，凭证保留
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = nil
	tc.generation++
}

// Token 返回可用的 token，必要时重新换取
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	if tc.token != nil && tc.token.Valid(tc.now()) {
		value := tc.token.Value
		tc.mu.Unlock()
		return value, nil
	}
	if tc.creds == nil {
		tc.mu.Unlock()
		return "", apperr.ConfigMissing("get tenant access token", "credentials")
	}
	creds := *tc.creds
	gen := tc.generation
	tc.mu.Unlock()

	value, ttl, err := tc.exchange(ctx, creds)
	if err != nil {
		return "", err
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.generation != gen {
		tc.logger.Debug("Credentials changed during token exchange, result not cached")
		return value, nil
	}
	tc.token = &CachedToken{
		Value:     value,
		ExpiresAt: tc.now().Add(ttl),
	}
	tc.logger.Debug("Tenant access token refreshed", zap.Duration("ttl", ttl))
	return value, nil
}
