package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind: нормализованный вид ошибки обращения к удалённому API.
type Kind string

const (
	KindNetwork           Kind = "network"
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindServer            Kind = "server"
	KindInvalidResponse   Kind = "invalid_response"
	KindInsecureTransport Kind = "insecure_transport"
)

// Error описывает ошибку обращения к удалённому API.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("gateway %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает вид ошибки шлюза или пустую строку, если ошибка пришла не из шлюза.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// IsKind сообщает, является ли err ошибкой шлюза указанного вида.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage возвращает текст для пользователя: сообщение сервера, если оно есть, иначе fallback.
func UserMessage(err error, fallback string) string {
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Message == "" {
		return fallback
	}
	switch gwErr.Kind {
	case KindValidation, KindForbidden, KindNotFound, KindConflict:
		return gwErr.Message
	}
	return fallback
}

// classify переводит HTTP-статус в вид ошибки. Для успешных статусов возвращает пустую строку.
func classify(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	}
	return KindInvalidResponse
}
