package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/models"
	"github.com/langchou/answerdesk/internal/state"
)

// Publisher 事件推送（WebSocket Hub 实现）
type Publisher interface {
	BroadcastMessage(msgType string, data interface{})
}

// SettingsStore 配置持久化
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// UserStore 用户持久化
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// CredentialsChanged credentials_changed 事件内容
type CredentialsChanged struct {
	AppID string `json:"app_id"`
}

// RecordUpdated record_updated 事件内容
type RecordUpdated struct {
	AppToken string `json:"app_token"`
	TableID  string `json:"table_id"`
	RecordID string `json:"record_id"`
	Created  bool   `json:"created,omitempty"`
}

// publish 推送事件，未设置 Publisher 时忽略
func publish(p Publisher, msgType string, data interface{}) {
	if p == nil {
		return
	}
	p.BroadcastMessage(msgType, data)
}

// tracker 根据调用结果驱动集成状态机
type tracker struct {
	machine *state.Machine
	logger  *zap.Logger
}

func newTracker(links *state.Manager, link string, logger *zap.Logger) *tracker {
	return &tracker{machine: links.GetOrCreate(link), logger: logger}
}

// configured 配置变更
func (t *tracker) configured() {
	t.trigger(state.EventConfigure, "")
}

// observe 记录一次上游调用的结果
// 只有网络、上游和协议错误说明链路有问题，配置缺失和参数错误不改变状态
func (t *tracker) observe(err error) {
	if err == nil {
		t.trigger(state.EventSucceed, "")
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindNetwork, apperr.KindUpstream, apperr.KindProtocol:
		t.trigger(state.EventFail, err.Error())
	}
}

func (t *tracker) trigger(event, lastError string) {
	if !t.machine.CanTransition(event) {
		return
	}
	if err := t.machine.Trigger(event, lastError); err != nil {
		t.logger.Warn("Link state transition failed",
			zap.String("event", event),
			zap.Error(err))
	}
}

// maskSecret 隐藏密钥，只保留末尾四位
func maskSecret(secret string) string {
	r := []rune(secret)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

// isMasked 判断客户端回传的是否是掩码后的值
func isMasked(value string) bool {
	return strings.HasPrefix(value, "*")
}
