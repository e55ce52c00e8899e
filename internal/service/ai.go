package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/api/llm"
	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/models"
	"github.com/langchou/answerdesk/internal/state"
)

// Gateway 对话补全网关（llm.Client 实现）
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
	SetConfig(cfg llm.Config)
	Config() (llm.Config, bool)
}

// LengthError 优化后回复超出字数上限
type LengthError struct {
	Actual int
	Limit  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("optimized reply has %d chars, limit %d (%d%% over)", e.Actual, e.Limit, e.PercentOver())
}

// PercentOver 超出上限的百分比，向下取整
func (e *LengthError) PercentOver() int {
	if e.Limit == 0 {
		return 0
	}
	return int((float64(e.Actual)/float64(e.Limit) - 1) * 100)
}

// AIService 回复优化、审核与风险检测
type AIService struct {
	gateway Gateway
	store   SettingsStore
	link    *tracker
	logger  *zap.Logger
}

// NewAIService 创建 AI 服务，store 可以为 nil
func NewAIService(gateway Gateway, store SettingsStore, links *state.Manager, logger *zap.Logger) *AIService {
	return &AIService{
		gateway: gateway,
		store:   store,
		link:    newTracker(links, state.LinkAI, logger),
		logger:  logger,
	}
}

// Restore 从持久化存储恢复 AI 配置
func (s *AIService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	data, err := s.store.Get(ctx, models.SettingAI)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	var settings models.AISettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("decode ai settings: %w", err)
	}

	s.gateway.SetConfig(llm.Config{
		APIKey:  settings.APIKey,
		APIBase: settings.APIBase,
		Model:   settings.Model,
	})
	s.link.configured()

	s.logger.Info("Restored AI settings", zap.String("model", settings.Model))
	return nil
}

// SetConfig 保存 AI 配置
// APIKey 为空或是掩码时沿用当前值
func (s *AIService) SetConfig(ctx context.Context, cfg llm.Config) error {
	const op = "set ai config"

	cfg.APIBase = strings.TrimSpace(cfg.APIBase)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIBase == "" || cfg.Model == "" {
		return apperr.Validation(op, "api_base and model are required")
	}

	if cfg.APIKey == "" || isMasked(cfg.APIKey) {
		current, _ := s.gateway.Config()
		cfg.APIKey = current.APIKey
	}
	if cfg.APIKey == "" {
		return apperr.Validation(op, "api_key is required")
	}

	s.gateway.SetConfig(cfg)
	s.link.configured()
	s.logger.Info("AI config updated", zap.String("api_base", cfg.APIBase), zap.String("model", cfg.Model))

	if s.store == nil {
		return nil
	}
	data, err := json.Marshal(models.AISettings{APIKey: cfg.APIKey, APIBase: cfg.APIBase, Model: cfg.Model})
	if err != nil {
		return fmt.Errorf("encode ai settings: %w", err)
	}
	if err := s.store.Put(ctx, models.SettingAI, data); err != nil {
		return fmt.Errorf("save ai settings: %w", err)
	}
	return nil
}

// Config 返回当前配置，APIKey 做掩码处理
func (s *AIService) Config() (llm.Config, bool) {
	cfg, ok := s.gateway.Config()
	if !ok {
		return llm.Config{}, false
	}
	cfg.APIKey = maskSecret(cfg.APIKey)
	return cfg, true
}

// TestConnection 发送固定探测提示词，返回模型回复
func (s *AIService) TestConnection(ctx context.Context) (string, error) {
	return s.complete(ctx, probePrompt)
}

// Optimize 保守地优化一条客服回复
// 回复中【最终客服回复】段落的字数不能超过原回复的 1.5 倍
func (s *AIService) Optimize(ctx context.Context, answer, background string) (string, error) {
	original := utf8.RuneCountInString(answer)
	limit := original * 3 / 2

	reply, err := s.complete(ctx, optimizePrompt(answer, background, original, limit))
	if err != nil {
		return "", err
	}

	if section, ok := finalReplySection(reply); ok {
		if actual := utf8.RuneCountInString(section); actual > limit {
			lenErr := &LengthError{Actual: actual, Limit: limit}
			s.logger.Info("Optimized reply exceeds limit",
				zap.Int("actual", actual),
				zap.Int("limit", limit))
			return "", &apperr.Error{
				Kind: apperr.KindValidation,
				Op:   "optimize answer",
				Msg:  lenErr.Error(),
				Err:  lenErr,
			}
		}
	}

	return reply, nil
}

// Review 审核一条客服回复，原样返回模型输出
func (s *AIService) Review(ctx context.Context, answer, background string) (string, error) {
	return s.complete(ctx, reviewPrompt(answer, background))
}

// CheckRisk 检测客服回复是否存在风险
func (s *AIService) CheckRisk(ctx context.Context, answer string) (models.RiskVerdict, error) {
	reply, err := s.complete(ctx, riskPrompt(answer))
	if err != nil {
		return models.RiskVerdict{}, err
	}
	return parseRisk(reply), nil
}

func (s *AIService) complete(ctx context.Context, prompt string) (string, error) {
	reply, err := s.gateway.Complete(ctx, prompt)
	s.link.observe(err)
	return reply, err
}

// finalReplySection 截取【最终客服回复】到【内部优化说明】（或结尾）之间的内容
func finalReplySection(reply string) (string, bool) {
	start := strings.Index(reply, markerFinalReply)
	if start < 0 {
		return "", false
	}
	rest := reply[start+len(markerFinalReply):]
	if end := strings.Index(rest, markerNotes); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

// parseRisk 解析 RISK / REASON 两行，缺失时视为无风险
func parseRisk(reply string) models.RiskVerdict {
	var verdict models.RiskVerdict
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "RISK"):
			if strings.Contains(strings.ToUpper(line), "YES") {
				verdict.HasRisk = true
			}
		case strings.HasPrefix(line, "REASON"):
			if i := strings.Index(line, "="); i >= 0 {
				verdict.Reason = strings.TrimSpace(line[i+1:])
			}
		}
	}
	return verdict
}
