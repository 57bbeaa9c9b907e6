package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/nexuspay-client/internal/store"
)

// Credentials: единственный на процесс кэш токена доступа с сохранением в долговременное хранилище.
type Credentials struct {
	// write упорядочивает изменения вместе с записью в хранилище.
	write     sync.Mutex
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	store     store.Store
}

// NewCredentials создаёт кэш учётных данных поверх хранилища.
func NewCredentials(s store.Store) *Credentials {
	return &Credentials{store: s}
}

// Load поднимает сохранённый токен из хранилища. Возвращает false, если токена нет.
func (c *Credentials) Load(ctx context.Context) (bool, error) {
	c.write.Lock()
	defer c.write.Unlock()

	token, err := c.store.Get(ctx, store.KeyCredential)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load credential: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = tokenExpiry(token)
	c.mu.Unlock()

	return token != "", nil
}

// Set запоминает новый токен и сохраняет его.
func (c *Credentials) Set(ctx context.Context, token string) error {
	c.write.Lock()
	defer c.write.Unlock()
	return c.setLocked(ctx, token)
}

// Replace заменяет токен, только если текущий токен равен old. Возвращает false,
// если токен успел смениться или был очищен, новое значение тогда отбрасывается.
func (c *Credentials) Replace(ctx context.Context, old, token string) (bool, error) {
	c.write.Lock()
	defer c.write.Unlock()

	if old == "" || c.Token() != old {
		return false, nil
	}
	return true, c.setLocked(ctx, token)
}

// Clear забывает токен и удаляет его из хранилища.
func (c *Credentials) Clear(ctx context.Context) error {
	c.write.Lock()
	defer c.write.Unlock()
	return c.clearLocked(ctx)
}

// ClearIf очищает учётные данные, только если текущий токен равен token.
func (c *Credentials) ClearIf(ctx context.Context, token string) (bool, error) {
	c.write.Lock()
	defer c.write.Unlock()

	if token == "" || c.Token() != token {
		return false, nil
	}
	return true, c.clearLocked(ctx)
}

func (c *Credentials) setLocked(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.expiresAt = tokenExpiry(token)
	c.mu.Unlock()

	if err := c.store.Set(ctx, store.KeyCredential, token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}

func (c *Credentials) clearLocked(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	if err := c.store.Delete(ctx, store.KeyCredential); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// Token возвращает текущий токен или пустую строку.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Present сообщает, есть ли живой токен.
func (c *Credentials) Present() bool {
	return c.Token() != ""
}

// ExpiresAt возвращает срок действия токена, если токен является JWT с полем exp.
func (c *Credentials) ExpiresAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt, !c.expiresAt.IsZero()
}

// Expired сообщает, истёк ли срок действия токена к моменту now.
func (c *Credentials) Expired(now time.Time) bool {
	exp, ok := c.ExpiresAt()
	return ok && !now.Before(exp)
}

// tokenExpiry читает exp из JWT без проверки подписи: подпись проверяет сервер,
// клиенту нужен только срок действия. Для непрозрачных токенов возвращает нулевое время.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
