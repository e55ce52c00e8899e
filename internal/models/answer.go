package models

// Answer 标准回答表中的一条记录（规整后）
type Answer struct {
	RecordID       string         `json:"record_id"`
	Question       string         `json:"question"`        // 问题
	StandardAnswer string         `json:"standard_answer"` // 标准回答
	EnableStatus   string         `json:"enable_status"`   // 状态（启用 / 停用）
	Scene          string         `json:"scene"`           // 使用场景
	Tone           string         `json:"tone"`            // 语气
	ProductName    string         `json:"product_name"`    // 对应产品
	ProductID      string         `json:"product_id"`
	RawFields      map[string]any `json:"raw_fields,omitempty"` // 原始字段，便于排查
}

// RiskVerdict 风险检测结果
type RiskVerdict struct {
	HasRisk bool   `json:"hasRisk"`
	Reason  string `json:"reason"`
}
