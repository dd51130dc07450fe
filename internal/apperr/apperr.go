// Package apperr 定义了对外可见的错误分类。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误分类，序列化到响应体的 error 字段。
type Kind string

const (
	DuplicateUser       Kind = "DuplicateUser"
	InvalidCredentials  Kind = "InvalidCredentials"
	Unauthorized        Kind = "Unauthorized"
	NotFound            Kind = "NotFound"
	ConversationClosed  Kind = "ConversationClosed"
	BadRequest          Kind = "BadRequest"
	ProviderUnavailable Kind = "ProviderUnavailable"
	Unrecognized        Kind = "Unrecognized"
	InternalError       Kind = "InternalError"
)

// Error 携带分类、面向用户的简短描述以及底层原因。
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, apperr.New(kind, "")) 按分类匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf 返回错误的分类，非 *Error 一律视为 InternalError。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// DetailOf 返回可以展示给用户的描述。内部错误不暴露原因。
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != InternalError {
		return e.Detail
	}
	return "Internal server error"
}

// Status 把分类映射到 HTTP 状态码。
func Status(kind Kind) int {
	switch kind {
	case DuplicateUser, BadRequest, ConversationClosed, Unrecognized:
		return http.StatusBadRequest
	case InvalidCredentials, Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
