package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/api/feishu"
	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/service"
)

// maxBodyRunes 错误消息中保留的上游响应体长度
const maxBodyRunes = 200

// 缺失配置项的提示
var configMessages = map[string]string{
	"credentials": "请先配置飞书 App ID 和 App Secret",
	"ai config":   "请先配置 AI 服务（API 地址、API Key 和模型）",
}

// 资源名称
var resourceNames = map[string]string{
	"user": "用户",
}

// 冲突原因的提示
var conflictMessages = map[string]string{
	"username already exists":        "用户名已存在",
	"at least one admin must remain": "至少需要保留一个管理员账号",
}

// respondError 把错误转换为状态码和面向用户的中文消息
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	} else {
		h.logger.Debug("Request rejected",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error": Message(err),
		"kind":  kind,
	})
}

// badRequest 请求体或参数无法解析
func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": msg,
		"kind":  apperr.KindValidation,
	})
}

func statusFor(err error) int {
	if errors.Is(err, service.ErrInvalidLogin) {
		return http.StatusUnauthorized
	}

	var e *apperr.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConfigMissing:
		return http.StatusPreconditionFailed
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNetwork:
		if e.Reason == apperr.NetTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case apperr.KindUpstream, apperr.KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message 面向用户的错误消息
func Message(err error) string {
	if errors.Is(err, service.ErrInvalidLogin) {
		return "用户名或密码错误"
	}

	var lenErr *service.LengthError
	if errors.As(err, &lenErr) {
		return fmt.Sprintf("优化后回复字数（%d字）超出限制（%d字），超出%d%%。请压缩内容或重新优化。",
			lenErr.Actual, lenErr.Limit, lenErr.PercentOver())
	}

	var e *apperr.Error
	if !errors.As(err, &e) {
		return "内部错误，请稍后重试"
	}

	switch e.Kind {
	case apperr.KindConfigMissing:
		if msg, ok := configMessages[e.Field]; ok {
			return msg
		}
		return "缺少配置: " + e.Field

	case apperr.KindNetwork:
		switch e.Reason {
		case apperr.NetTimeout:
			return "网络请求超时，请检查网络连接后重试"
		case apperr.NetDNS:
			return "无法解析服务器地址，请检查网络或 DNS 设置"
		case apperr.NetRefused:
			return "连接被拒绝，请检查服务地址是否正确"
		default:
			if e.Err != nil {
				return "网络请求失败: " + e.Err.Error()
			}
			return "网络请求失败"
		}

	case apperr.KindUpstream:
		switch e.Code {
		case feishu.CodeInvalidAppID:
			return fmt.Sprintf("App ID 无效或不存在 (错误代码: %d)", e.Code)
		case feishu.CodeInvalidAppSecret:
			return fmt.Sprintf("App Secret 无效或错误 (错误代码: %d)", e.Code)
		}
		if e.Code != 0 {
			return fmt.Sprintf("%s (错误代码: %d)", e.Msg, e.Code)
		}
		if e.Status != 0 {
			return fmt.Sprintf("请求失败 (%d): %s", e.Status, truncate(e.Body, maxBodyRunes))
		}
		return "API 错误: " + e.Msg

	case apperr.KindProtocol:
		if e.Field != "" {
			return "解析响应失败: 缺少字段 " + e.Field
		}
		if e.Err != nil {
			return "解析响应失败: " + e.Err.Error()
		}
		return "解析响应失败"

	case apperr.KindValidation:
		return "参数错误: " + e.Msg

	case apperr.KindNotFound:
		if name, ok := resourceNames[e.Field]; ok {
			return name + "不存在"
		}
		return e.Field + " 不存在"

	case apperr.KindConflict:
		if msg, ok := conflictMessages[e.Msg]; ok {
			return msg
		}
		return e.Msg

	default:
		return "内部错误，请稍后重试"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
