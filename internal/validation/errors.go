package validation

import (
	"sort"
	"strings"
)

// FieldErrors собирает ошибки проверки по именам полей.
type FieldErrors map[string]string

// Add записывает ошибку поля, если поле ещё не содержит ошибки.
func (e FieldErrors) Add(field, message string) {
	if _, ok := e[field]; !ok {
		e[field] = message
	}
}

// Check добавляет ошибку, если ok ложно.
func (e FieldErrors) Check(ok bool, field, message string) {
	if !ok {
		e.Add(field, message)
	}
}

// Err возвращает nil, если ошибок нет.
func (e FieldErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
