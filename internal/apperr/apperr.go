package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind 错误类别
type Kind string

const (
	KindConfigMissing Kind = "config_missing" // 未配置凭证或 AI 设置
	KindNetwork       Kind = "network"        // 传输层失败
	KindUpstream      Kind = "upstream"       // 远端返回失败状态或错误码
	KindProtocol      Kind = "protocol"       // 响应结构无法解析或缺少字段
	KindValidation    Kind = "validation"     // 本地校验失败
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

// NetReason 网络错误的具体原因
type NetReason string

const (
	NetTimeout NetReason = "timeout"
	NetDNS     NetReason = "dns"
	NetRefused NetReason = "refused"
	NetOther   NetReason = "other"
)

// Error 带类别和上下文的错误
type Error struct {
	Kind   Kind
	Op     string    // 出错的操作，如 "list records"
	Status int       // HTTP 状态码（上游错误）
	Code   int       // 响应包中的业务错误码
	Msg    string    // 上游或本地给出的说明
	Body   string    // 原始响应体（上游错误）
	Field  string    // 缺失或非法的字段名
	Reason NetReason // 网络错误原因
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, " msg=%s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链中第一个 *Error 的类别，非本包错误视为 internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ConfigMissing 缺少配置
func ConfigMissing(op, what string) *Error {
	return &Error{Kind: KindConfigMissing, Op: op, Field: what}
}

// Validation 本地校验失败
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// Protocol 响应结构错误
func Protocol(op, field string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Field: field, Err: err}
}

// Upstream 远端返回了错误码
func Upstream(op string, code int, msg string) *Error {
	return &Error{Kind: KindUpstream, Op: op, Code: code, Msg: msg}
}

// UpstreamStatus 远端返回了非成功 HTTP 状态
func UpstreamStatus(op string, status int, body string) *Error {
	return &Error{Kind: KindUpstream, Op: op, Status: status, Body: body}
}

// NotFound 资源不存在
func NotFound(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Field: what}
}

// Conflict 资源冲突
func Conflict(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

// Network 包装传输层错误并识别原因
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Reason: ClassifyNet(err), Err: err}
}

// ClassifyNet 识别超时、DNS 解析失败和连接被拒绝
func ClassifyNet(err error) NetReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return NetTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return NetTimeout
		}
		return NetDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return NetRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NetTimeout
	}
	return NetOther
}
