package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/api/feishu"
	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/models"
	"github.com/langchou/answerdesk/internal/state"
	"github.com/langchou/answerdesk/pkg/ws"
)

type feishuFixture struct {
	svc       *FeishuService
	links     *state.Manager
	store     *memSettings
	events    *recorder
	exchanges atomic.Int32
	updated   map[string]any
}

func newFeishuFixture(t *testing.T) *feishuFixture {
	t.Helper()
	f := &feishuFixture{
		links:  state.NewManager(nil),
		store:  newMemSettings(),
		events: &recorder{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		f.exchanges.Add(1)
		var creds feishu.Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.AppSecret == "bad" {
			_, _ = io.WriteString(w, `{"code":99991664,"msg":"invalid app_secret"}`)
			return
		}
		_, _ = io.WriteString(w, `{"code":0,"msg":"ok","tenant_access_token":"t-`+creds.AppID+`","expire":7200}`)
	})
	mux.HandleFunc("/bitable/v1/apps/app/tables/tbl/records", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"record":{"record_id":"rec9","fields":{"问题":"新问题"}}}}`)
			return
		}
		_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"has_more":false,"items":[
			{"record_id":"rec1","fields":{"问题":"怎么退货？","标准回答":[{"type":"text","text":"七天无理由"}],"状态":{"text":"启用"},"product_id":1024}},
			{"record_id":"rec2","fields":{"问题":null}}
		]}}`)
	})
	mux.HandleFunc("/bitable/v1/apps/app/tables/tbl/records/rec1", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.updated = body.Fields
		_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"record":{"record_id":"rec1","fields":{}}}}`)
	})
	mux.HandleFunc("/bitable/v1/apps/broken/tables", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":91402,"msg":"NOTEXIST"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := feishu.NewClient(srv.URL, 5*time.Second, 0, zap.NewNop())
	f.svc = NewFeishuService(client, f.store, f.events, f.links, zap.NewNop())
	return f
}

func (f *feishuFixture) linkState() string {
	return f.links.GetOrCreate(state.LinkFeishu).CurrentState()
}

func TestSetCredentials(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()

	err := f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_a"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, state.StateUnconfigured, f.linkState())

	require.NoError(t, f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_a", AppSecret: "s"}))
	assert.Equal(t, state.StateConfigured, f.linkState())

	token, err := f.svc.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-cli_a", token)
	assert.Equal(t, state.StateConnected, f.linkState())

	// 新凭证立即生效
	require.NoError(t, f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_b", AppSecret: "s"}))
	token, err = f.svc.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-cli_b", token)
	assert.Equal(t, int32(2), f.exchanges.Load())

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, event{Type: ws.MsgTypeCredentialsChanged, Data: CredentialsChanged{AppID: "cli_b"}}, events[1])

	var saved models.FeishuSettings
	data, err := f.store.Get(ctx, models.SettingFeishu)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "cli_b", saved.AppID)
	assert.Equal(t, "s", saved.AppSecret)
}

func TestAccessTokenFailureMarksLinkFailed(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_a", AppSecret: "bad"}))

	_, err := f.svc.AccessToken(ctx)
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.KindUpstream, e.Kind)
	assert.Equal(t, feishu.CodeInvalidAppSecret, e.Code)

	ls := f.links.GetOrCreate(state.LinkFeishu).GetState()
	assert.Equal(t, state.StateFailed, ls.State)
	assert.NotEmpty(t, ls.LastError)
}

func TestTestConnectionDoesNotTouchCache(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.TestConnection(ctx, feishu.Credentials{AppID: "cli_x", AppSecret: "s"}))

	_, ok := f.svc.Credentials()
	assert.False(t, ok)
	assert.Equal(t, state.StateUnconfigured, f.linkState())

	err := f.svc.TestConnection(ctx, feishu.Credentials{AppID: "cli_x", AppSecret: "bad"})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	err = f.svc.TestConnection(ctx, feishu.Credentials{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestListAnswers(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_a", AppSecret: "s"}))

	answers, err := f.svc.ListAnswers(ctx, "app", "tbl", false)
	require.NoError(t, err)
	require.Len(t, answers, 2)

	assert.Equal(t, models.Answer{
		RecordID:       "rec1",
		Question:       "怎么退货？",
		StandardAnswer: "七天无理由",
		EnableStatus:   "启用",
		Scene:          "-",
		Tone:           "-",
		ProductName:    "-",
		ProductID:      "1024",
	}, answers[0])
	assert.Equal(t, "-", answers[1].Question)

	withRaw, err := f.svc.ListAnswers(ctx, "app", "tbl", true)
	require.NoError(t, err)
	assert.Contains(t, withRaw[0].RawFields, "状态")
}

func TestListAnswersWithoutCredentials(t *testing.T) {
	f := newFeishuFixture(t)

	_, err := f.svc.ListAnswers(context.Background(), "app", "tbl", false)
	assert.True(t, apperr.Is(err, apperr.KindConfigMissing))
	assert.Equal(t, state.StateUnconfigured, f.linkState())
}

func TestListTablesUpstreamError(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_a", AppSecret: "s"}))

	_, err := f.svc.ListTables(ctx, "broken")
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 91402, e.Code)
	assert.Equal(t, state.StateFailed, f.linkState())
}

func TestUpdateAndCreateRecordPublish(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetCredentials(ctx, feishu.Credentials{AppID: "cli_a", AppSecret: "s"}))

	err := f.svc.UpdateRecord(ctx, "app", "tbl", "rec1", nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, f.svc.UpdateRecord(ctx, "app", "tbl", "rec1", map[string]any{"标准回答": "新的回答"}))
	assert.Equal(t, map[string]any{"标准回答": "新的回答"}, f.updated)

	record, err := f.svc.CreateRecord(ctx, "app", "tbl", map[string]any{"问题": "新问题"})
	require.NoError(t, err)
	assert.Equal(t, "rec9", record.RecordID)

	events := f.events.all()
	require.Len(t, events, 3)
	assert.Equal(t, event{Type: ws.MsgTypeRecordUpdated, Data: RecordUpdated{AppToken: "app", TableID: "tbl", RecordID: "rec1"}}, events[1])
	assert.Equal(t, event{Type: ws.MsgTypeRecordUpdated, Data: RecordUpdated{AppToken: "app", TableID: "tbl", RecordID: "rec9", Created: true}}, events[2])
}

func TestFeishuSettings(t *testing.T) {
	f := newFeishuFixture(t)
	ctx := context.Background()

	err := f.svc.SaveSettings(ctx, models.FeishuSettings{Tables: []models.TableConfig{{Name: "x"}}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	tables := []models.TableConfig{{Name: "Answers", AppToken: "app", TableID: "tbl"}}
	require.NoError(t, f.svc.SaveSettings(ctx, models.FeishuSettings{AppID: "cli_a", AppSecret: "secret-9876", Tables: tables}))

	got := f.svc.Settings()
	assert.Equal(t, "cli_a", got.AppID)
	assert.Equal(t, "*******9876", got.AppSecret)
	assert.Equal(t, tables, got.Tables)
	assert.Equal(t, state.StateConfigured, f.linkState())

	// 回传掩码不改变凭证，也不触发 credentials_changed
	got.Tables = append(got.Tables, models.TableConfig{Name: "FAQ", AppToken: "app", TableID: "tbl2"})
	require.NoError(t, f.svc.SaveSettings(ctx, got))
	creds, ok := f.svc.Credentials()
	require.True(t, ok)
	assert.Equal(t, "secret-9876", creds.AppSecret)
	assert.Len(t, f.events.all(), 1)

	// 重启后恢复
	restored := newFeishuFixture(t)
	restored.store = f.store
	restored.svc.store = f.store
	require.NoError(t, restored.svc.Restore(ctx))

	creds, ok = restored.svc.Credentials()
	require.True(t, ok)
	assert.Equal(t, feishu.Credentials{AppID: "cli_a", AppSecret: "secret-9876"}, creds)
	assert.Len(t, restored.svc.Settings().Tables, 2)
	assert.Equal(t, state.StateConfigured, restored.linkState())
}

func TestRestoreWithoutStore(t *testing.T) {
	client := feishu.NewClient("http://127.0.0.1:0", time.Second, 0, zap.NewNop())
	svc := NewFeishuService(client, nil, nil, state.NewManager(nil), zap.NewNop())

	require.NoError(t, svc.Restore(context.Background()))
	require.NoError(t, svc.SetCredentials(context.Background(), feishu.Credentials{AppID: "a", AppSecret: "b"}))
	assert.Empty(t, svc.Settings().Tables)
}

func TestParseLinkViaService(t *testing.T) {
	f := newFeishuFixture(t)

	link, err := f.svc.ParseLink("https://example.feishu.cn/base/bascnABC?table=tblXYZ&view=vew1")
	require.NoError(t, err)
	assert.Equal(t, feishu.Link{AppToken: "bascnABC", TableID: "tblXYZ"}, link)
}
