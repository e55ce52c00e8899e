package feishu

import "encoding/json"

// Credentials 飞书自建应用凭证
type Credentials struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

// Table 多维表格中的数据表
type Table struct {
	TableID string `json:"table_id"`
	Name    string `json:"name"`
}

// Record 数据表记录，字段值原样保留（数字为 json.Number）
type Record struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

// apiResponse 通用响应包
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// tokenResponse tenant_access_token 接口响应，token 字段不在 data 中
type tokenResponse struct {
	Code              int     `json:"code"`
	Msg               string  `json:"msg"`
	TenantAccessToken *string `json:"tenant_access_token"`
	Expire            *int    `json:"expire"`
}

type tablesData struct {
	Items []Table `json:"items"`
}

type recordsData struct {
	Items     []Record `json:"items"`
	HasMore   bool     `json:"has_more"`
	PageToken string   `json:"page_token"`
	Total     int      `json:"total"`
}

type recordData struct {
	Record *Record `json:"record"`
}

type fieldsBody struct {
	Fields map[string]any `json:"fields"`
}

// 已知的凭证错误码
const (
	CodeInvalidAppID     = 99991663
	CodeInvalidAppSecret = 99991664
)
