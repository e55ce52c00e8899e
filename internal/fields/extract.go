// Package fields 把多维表格记录中形态各异的字段值规整为单个字符串。
//
// 选项类字段在上游可能是标量、选项数组或嵌套对象，取决于字段配置。
// 每种形态对应一个 Extractor，按固定顺序尝试，第一个给出结果的胜出。
package fields

import (
	"encoding/json"
	"strconv"
)

// Missing 所有候选字段都取不到值时返回的占位符
const Missing = "-"

// Extractor 尝试从一个字段值中取出字符串，ok 为 false 表示该形态不适用或没有可用值
type Extractor func(v any) (s string, ok bool)

// 数组元素对象与字段对象分别尝试的属性，顺序即优先级
var (
	itemLabelKeys   = []string{"text", "name", "option_name", "label"}
	objectLabelKeys = []string{"text", "name", "option_name"}
)

// Pipeline 有序的提取器列表
type Pipeline []Extractor

// DefaultPipeline 默认提取顺序：字符串、数值、布尔、数组、对象
var DefaultPipeline = Pipeline{
	fromString,
	fromNumber,
	fromBool,
	fromArray,
	fromObject,
}

// Extract 按候选键顺序查找第一个能提取出值的字段，都没有则返回 Missing
func (p Pipeline) Extract(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		for _, extract := range p {
			if s, ok := extract(v); ok {
				return s
			}
		}
	}
	return Missing
}

// Extract 使用 DefaultPipeline 提取
func Extract(fields map[string]any, keys ...string) string {
	return DefaultPipeline.Extract(fields, keys...)
}

func fromString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func fromNumber(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		// 保留原始写法，超出 int64 的整数也不丢精度
		return n.String(), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}

func fromBool(v any) (string, bool) {
	b, ok := v.(bool)
	if !ok {
		return "", false
	}
	return strconv.FormatBool(b), true
}

// fromArray 处理选项数组，如 [{"text":"启用"}] 或 ["启用"]
func fromArray(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return "", false
	}

	for _, item := range arr {
		switch it := item.(type) {
		case map[string]any:
			if s, ok := firstString(it, itemLabelKeys); ok {
				return s, true
			}
		case string:
			if it != "" {
				return it, true
			}
		}
	}

	// 最后手段：第一个元素是对象时输出其紧凑 JSON
	first, ok := arr[0].(map[string]any)
	if !ok {
		return "", false
	}
	data, err := json.Marshal(first)
	if err != nil || len(data) == 0 || string(data) == "{}" {
		return "", false
	}
	return string(data), true
}

func fromObject(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	return firstString(obj, objectLabelKeys)
}

func firstString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
