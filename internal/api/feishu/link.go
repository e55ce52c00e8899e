package feishu

import (
	"net/url"
	"strings"

	"github.com/langchou/answerdesk/internal/apperr"
)

// Link 从多维表格链接中解析出的标识
type Link struct {
	AppToken string `json:"app_token"`
	TableID  string `json:"table_id,omitempty"`
}

// ParseLink 解析多维表格链接
//
// 支持以下格式：
//   - {app_token}
//   - https://xxx.feishu.cn/base/{app_token}
//   - https://xxx.feishu.cn/base/{app_token}?table={table_id}&view={view_id}
func ParseLink(raw string) (Link, error) {
	const op = "parse bitable link"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Link{}, apperr.Validation(op, "link is empty")
	}

	// 不含路径分隔符的视为 app_token
	if !strings.Contains(raw, "/") {
		return Link{AppToken: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		// 无法解析时按 token 原样使用
		return Link{AppToken: raw}, nil
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "base" && segments[i+1] != "" {
			return Link{
				AppToken: segments[i+1],
				TableID:  u.Query().Get("table"),
			}, nil
		}
	}

	return Link{}, apperr.Validation(op, "no /base/{app_token} segment in link")
}
