package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/api/feishu"
	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/fields"
	"github.com/langchou/answerdesk/internal/models"
	"github.com/langchou/answerdesk/internal/state"
	"github.com/langchou/answerdesk/pkg/ws"
)

// FeishuService 飞书凭证、数据表与标准回答服务
type FeishuService struct {
	client *feishu.Client
	store  SettingsStore
	events Publisher
	link   *tracker
	logger *zap.Logger

	mu     sync.Mutex
	tables []models.TableConfig
}

// NewFeishuService 创建飞书服务，store 和 events 可以为 nil
func NewFeishuService(
	client *feishu.Client,
	store SettingsStore,
	events Publisher,
	links *state.Manager,
	logger *zap.Logger,
) *FeishuService {
	return &FeishuService{
		client: client,
		store:  store,
		events: events,
		link:   newTracker(links, state.LinkFeishu, logger),
		logger: logger,
	}
}

// Restore 从持久化存储恢复飞书配置
func (s *FeishuService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	data, err := s.store.Get(ctx, models.SettingFeishu)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	var settings models.FeishuSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("decode feishu settings: %w", err)
	}

	s.mu.Lock()
	s.tables = settings.Tables
	s.mu.Unlock()

	if settings.AppID != "" && settings.AppSecret != "" {
		s.client.Tokens().SetCredentials(feishu.Credentials{
			AppID:     settings.AppID,
			AppSecret: settings.AppSecret,
		})
		s.link.configured()
	}

	s.logger.Info("Restored feishu settings",
		zap.String("app_id", settings.AppID),
		zap.Int("tables", len(settings.Tables)))
	return nil
}

// SetCredentials 替换应用凭证，缓存的 token 同时失效
func (s *FeishuService) SetCredentials(ctx context.Context, creds feishu.Credentials) error {
	if creds.AppID == "" || creds.AppSecret == "" {
		return apperr.Validation("set credentials", "app_id and app_secret are required")
	}

	s.client.Tokens().SetCredentials(creds)
	s.link.configured()
	s.logger.Info("Feishu credentials updated", zap.String("app_id", creds.AppID))

	publish(s.events, ws.MsgTypeCredentialsChanged, CredentialsChanged{AppID: creds.AppID})

	return s.persist(ctx)
}

// Credentials 返回当前凭证
func (s *FeishuService) Credentials() (feishu.Credentials, bool) {
	return s.client.Tokens().Credentials()
}

// AccessToken 获取 tenant access token
func (s *FeishuService) AccessToken(ctx context.Context) (string, error) {
	token, err := s.client.Tokens().Token(ctx)
	s.link.observe(err)
	return token, err
}

// TestConnection 用给定凭证测试连接，不影响当前缓存
func (s *FeishuService) TestConnection(ctx context.Context, creds feishu.Credentials) error {
	if _, err := s.client.Exchange(ctx, creds); err != nil {
		s.logger.Warn("Feishu connection test failed", zap.String("app_id", creds.AppID), zap.Error(err))
		return err
	}
	return nil
}

// Settings 返回飞书配置，App Secret 做掩码处理
func (s *FeishuService) Settings() models.FeishuSettings {
	settings := s.snapshot()
	settings.AppSecret = maskSecret(settings.AppSecret)
	return settings
}

// SaveSettings 保存飞书配置
// AppSecret 为空或是掩码时沿用当前值
func (s *FeishuService) SaveSettings(ctx context.Context, settings models.FeishuSettings) error {
	for i, t := range settings.Tables {
		if t.AppToken == "" || t.TableID == "" {
			return apperr.Validation("save feishu settings", fmt.Sprintf("tables[%d]: app_token and table_id are required", i))
		}
	}

	current, ok := s.Credentials()
	if settings.AppSecret == "" || isMasked(settings.AppSecret) {
		settings.AppSecret = current.AppSecret
	}

	s.mu.Lock()
	s.tables = settings.Tables
	s.mu.Unlock()

	creds := feishu.Credentials{AppID: settings.AppID, AppSecret: settings.AppSecret}
	if creds.AppID != "" && creds.AppSecret != "" && (!ok || creds != current) {
		return s.SetCredentials(ctx, creds)
	}
	return s.persist(ctx)
}

// ParseLink 解析多维表格链接
func (s *FeishuService) ParseLink(raw string) (feishu.Link, error) {
	return feishu.ParseLink(raw)
}

// ListTables 获取应用下的数据表
func (s *FeishuService) ListTables(ctx context.Context, appToken string) ([]feishu.Table, error) {
	tables, err := s.client.ListTables(ctx, appToken)
	s.link.observe(err)
	return tables, err
}

// ListRecords 获取数据表的全部记录
func (s *FeishuService) ListRecords(ctx context.Context, appToken, tableID string) ([]feishu.Record, error) {
	records, err := s.client.ListRecords(ctx, appToken, tableID)
	s.link.observe(err)
	return records, err
}

// ListAnswers 获取数据表的全部记录并归一化为标准回答
func (s *FeishuService) ListAnswers(ctx context.Context, appToken, tableID string, withRaw bool) ([]models.Answer, error) {
	records, err := s.ListRecords(ctx, appToken, tableID)
	if err != nil {
		return nil, err
	}

	answers := make([]models.Answer, 0, len(records))
	for _, r := range records {
		a := fields.ToAnswer(r.RecordID, r.Fields)
		if !withRaw {
			a.RawFields = nil
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// GetRecord 获取单条记录
func (s *FeishuService) GetRecord(ctx context.Context, appToken, tableID, recordID string) (*feishu.Record, error) {
	record, err := s.client.GetRecord(ctx, appToken, tableID, recordID)
	s.link.observe(err)
	return record, err
}

// UpdateRecord 更新记录字段
func (s *FeishuService) UpdateRecord(ctx context.Context, appToken, tableID, recordID string, values map[string]any) error {
	if len(values) == 0 {
		return apperr.Validation("update record", "fields must not be empty")
	}

	err := s.client.UpdateRecord(ctx, appToken, tableID, recordID, values)
	s.link.observe(err)
	if err != nil {
		return err
	}

	publish(s.events, ws.MsgTypeRecordUpdated, RecordUpdated{
		AppToken: appToken,
		TableID:  tableID,
		RecordID: recordID,
	})
	return nil
}

// CreateRecord 新增记录
func (s *FeishuService) CreateRecord(ctx context.Context, appToken, tableID string, values map[string]any) (*feishu.Record, error) {
	if len(values) == 0 {
		return nil, apperr.Validation("create record", "fields must not be empty")
	}

	record, err := s.client.CreateRecord(ctx, appToken, tableID, values)
	s.link.observe(err)
	if err != nil {
		return nil, err
	}

	publish(s.events, ws.MsgTypeRecordUpdated, RecordUpdated{
		AppToken: appToken,
		TableID:  tableID,
		RecordID: record.RecordID,
		Created:  true,
	})
	return record, nil
}

func (s *FeishuService) snapshot() models.FeishuSettings {
	creds, _ := s.Credentials()

	s.mu.Lock()
	tables := make([]models.TableConfig, len(s.tables))
	copy(tables, s.tables)
	s.mu.Unlock()

	return models.FeishuSettings{
		AppID:     creds.AppID,
		AppSecret: creds.AppSecret,
		Tables:    tables,
	}
}

// persist 写入持久化存储，未配置数据库时只保存在内存
func (s *FeishuService) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return fmt.Errorf("encode feishu settings: %w", err)
	}
	if err := s.store.Put(ctx, models.SettingFeishu, data); err != nil {
		return fmt.Errorf("save feishu settings: %w", err)
	}
	return nil
}
