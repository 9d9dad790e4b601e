package code

import (
	"errors"
	"fmt"
)

// Error 携带错误码的业务错误，服务层返回，控制器层映射为HTTP响应
type Error struct {
	Code    int
	Message string
	Err     error
}

// New 创建业务错误，message 为空时使用错误码默认消息
func New(code int, message string) *Error {
	if message == "" {
		message = GetMessage(code)
	}
	return &Error{Code: code, Message: message}
}

// Wrap 包装底层错误
func Wrap(code int, err error) *Error {
	return &Error{Code: code, Message: GetMessage(code), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, code.New(ErrAlreadyExited, "")) 成立
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Status 返回错误对应的HTTP状态码
func (e *Error) Status() int {
	return GetStatus(e.Code)
}

// CodeOf 提取错误码，非业务错误返回 ErrUnknown
func CodeOf(err error) int {
	if err == nil {
		return ErrSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}
