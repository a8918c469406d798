// Package apperr 定义请求处理链路上的错误分类，并负责映射到 HTTP 状态码
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindInvalidFileType Kind = "INVALID_FILE_TYPE"
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	KindMissingFile     Kind = "MISSING_FILE"
	KindProcessing      Kind = "PROCESSING_ERROR"
	KindEncoding        Kind = "ENCODING_ERROR"
	KindUnknown         Kind = "UNKNOWN_SERVER_ERROR"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Kind 比较，便于 errors.Is(err, apperr.New(apperr.KindEncoding, ""))
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 取错误链上最外层的 *Error 的分类，没有则视为未知错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Status 只有缺少文件是客户端错误，其余一律 500
func Status(err error) int {
	if KindOf(err) == KindMissingFile {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
