package fields

import "github.com/langchou/answerdesk/internal/models"

// 标准回答表的字段名
const (
	FieldQuestion       = "问题"
	FieldStandardAnswer = "标准回答"
	FieldStatus         = "状态"
	FieldScene          = "使用场景"
	FieldTone           = "语气"
	FieldProduct        = "对应产品"
	FieldProductID      = "product_id"
)

// ToAnswer 把一条原始记录映射为 Answer，原始字段原样保留
func ToAnswer(recordID string, raw map[string]any) models.Answer {
	return models.Answer{
		RecordID:       recordID,
		Question:       Extract(raw, FieldQuestion),
		StandardAnswer: Extract(raw, FieldStandardAnswer),
		EnableStatus:   Extract(raw, FieldStatus),
		Scene:          Extract(raw, FieldScene),
		Tone:           Extract(raw, FieldTone),
		ProductName:    Extract(raw, FieldProduct),
		ProductID:      Extract(raw, FieldProductID),
		RawFields:      raw,
	}
}
