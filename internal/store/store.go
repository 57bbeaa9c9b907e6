// Package store содержит долговременное клиентское хранилище: учётные данные, кэш пользователя и настройки.
package store

import (
	"context"
	"errors"
	"sync"
)

// Ключи хранимых значений.
const (
	KeyCredential  = "np_access_token"
	KeyUser        = "np_user"
	KeyPreferences = "np_preferences"
)

// ErrNotFound возвращается, если значение по ключу отсутствует.
var ErrNotFound = errors.New("store: key not found")

// Store описывает хранилище строковых значений по ключу.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Memory хранит значения только в памяти процесса.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get возвращает значение по ключу.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set сохраняет значение по ключу.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete удаляет значение по ключу. Отсутствие ключа не считается ошибкой.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
