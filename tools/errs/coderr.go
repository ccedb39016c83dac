package errs

import (
	stderr "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ===== 错误码 =====
//
// 1xxx 认证/授权；12xx 参数；13xx 投递；15xx 服务内部。
const (
	UnauthenticatedError = 1101 // 凭证缺失/过期/非法
	ForbiddenError       = 1103 // 已认证但不在会话受众内
	RecordNotFoundError  = 1104 // 会话/消息不存在
	ValidationError      = 1201 // 空消息体、游标非法等
	TransientDelivery    = 1301 // 单个在线推送失败（仅记录，连接被摘除）
	ServerInternalError  = 1500
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// 预置错误（每类一个哨兵，errors.Is 按码比较）
var (
	ErrUnauthenticated = NewCodeError(UnauthenticatedError, "unauthenticated")
	ErrForbidden       = NewCodeError(ForbiddenError, "forbidden")
	ErrNotFound        = NewCodeError(RecordNotFoundError, "not found")
	ErrValidation      = NewCodeError(ValidationError, "validation error")
	ErrInternal        = NewCodeError(ServerInternalError, "server internal error")
)

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// WithDetail 追加细节并返回新值（原错误不变，便于复用预置错误）
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// WrapMsg 带细节 + 堆栈
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	return errors.WithStack(e.WithDetail(toString(msg, kv)))
}

func (e *CodeError) Wrap() error { return errors.WithStack(e) }

// Is 支持 errors.Is(err, errs.ErrForbidden) 按错误码比较
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !stderr.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// CodeOf 提取错误码；非 CodeError 一律视为内部错误
func CodeOf(err error) int {
	var ce *CodeError
	if stderr.As(err, &ce) {
		return ce.Code
	}
	return ServerInternalError
}

// New 普通错误（带堆栈）
func New(msg string, kv ...any) error {
	return errors.New(toString(msg, kv))
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		sb.WriteString(" ")
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		}
	}
	return sb.String()
}
