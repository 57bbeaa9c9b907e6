// Package gateway реализует единую точку обращения к удалённому API NexusPay: подставляет токен и CSRF-токен,
// нормализует ошибки и сообщает сессии об ответах 401.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	csrfHeader     = "X-CSRF-Token"
	schemaVersion  = 1
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Observer получает результат каждого запроса. Пустой kind означает успех.
type Observer interface {
	ObserveResponse(method string, kind Kind)
}

// Options: параметры клиента.
type Options struct {
	BaseURL string
	// AllowInsecure разрешает http:// только в локальном и тестовом режимах.
	AllowInsecure bool
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
	Observer      Observer
	Now           func() time.Time
}

// Client инкапсулирует HTTP-взаимодействие с удалённым API.
type Client struct {
	baseURL       string
	allowInsecure bool
	httpClient    *http.Client
	creds         *Credentials
	logger        *zap.Logger
	observer      Observer
	now           func() time.Time

	csrfMu    sync.RWMutex
	csrfToken string
	csrfGroup singleflight.Group

	unauthMu          sync.RWMutex
	onUnauthenticated func()
}

// NewClient создаёт клиент удалённого API. Адрес без схемы считается https.
func NewClient(opts Options, creds *Credentials) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base url is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if creds == nil {
		return nil, errors.New("gateway: credentials are required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = defaultTimeout
		if opts.Timeout > 0 {
			httpClient.Timeout = opts.Timeout
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:       base,
		allowInsecure: opts.AllowInsecure,
		httpClient:    httpClient,
		creds:         creds,
		logger:        logger,
		observer:      opts.Observer,
		now:           now,
	}, nil
}

// Credentials возвращает общий кэш учётных данных клиента.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// OnUnauthenticated задаёт обработчик ответа 401. Обработчик не должен обращаться к сети.
func (c *Client) OnUnauthenticated(fn func()) {
	c.unauthMu.Lock()
	c.onUnauthenticated = fn
	c.unauthMu.Unlock()
}

// Secure сообщает, работает ли клиент поверх TLS.
func (c *Client) Secure() bool {
	return strings.HasPrefix(c.baseURL, "https://")
}

type envelope struct {
	Version int             `json:"version"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// validatable реализуют ответы, которые проверяются на границе шлюза.
type validatable interface {
	validate() error
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if !c.allowInsecure && !c.Secure() {
		c.observe(method, KindInsecureTransport)
		return &Error{Kind: KindInsecureTransport, Message: "api must use https"}
	}

	token := c.creds.Token()
	if token != "" && c.creds.Expired(c.now()) {
		c.logger.Info("credential expired locally, clearing session")
		c.handleUnauthenticated(ctx, token)
		c.observe(method, KindUnauthenticated)
		return &Error{Kind: KindUnauthenticated, Message: "session expired"}
	}

	mutating := isMutating(method)
	if mutating {
		if _, err := c.ensureCSRF(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if mutating {
		if csrf := c.csrfValue(); csrf != "" {
			req.Header.Set(csrfHeader, csrf)
		}
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Bool("has_auth", token != ""),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, KindNetwork)
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if kind := classify(resp.StatusCode); kind != "" {
		c.observe(method, kind)
		// 403 сессию не трогает: пользователь вошёл, но прав недостаточно.
		// Отказ в изменяющем запросе может означать сменившийся CSRF-токен, повтора нет.
		if kind == KindForbidden && mutating {
			c.ResetCSRF()
		}
		if kind == KindUnauthenticated && token != "" {
			c.logger.Info("unauthenticated response, clearing session", zap.String("path", path))
			c.handleUnauthenticated(ctx, token)
		}
		return &Error{Kind: kind, Status: resp.StatusCode, Message: serverMessage(raw)}
	}

	if readErr != nil {
		c.observe(method, KindNetwork)
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", readErr)}
	}

	if err := decodeEnvelope(raw, out); err != nil {
		c.observe(method, KindInvalidResponse)
		c.logger.Warn("invalid api response", zap.String("path", path), zap.Error(err))
		return err
	}

	c.observe(method, "")
	return nil
}

// handleUnauthenticated очищает сессию, только если запрос был подписан текущим токеном.
// Поздний 401 на старый токен новую сессию не трогает.
func (c *Client) handleUnauthenticated(ctx context.Context, token string) {
	cleared, err := c.creds.ClearIf(context.WithoutCancel(ctx), token)
	if err != nil {
		c.logger.Error("clear credential error", zap.Error(err))
	}
	if !cleared && err == nil {
		c.logger.Debug("stale unauthenticated response ignored")
		return
	}

	c.unauthMu.RLock()
	fn := c.onUnauthenticated
	c.unauthMu.RUnlock()

	if fn != nil {
		fn()
	}
}

func (c *Client) observe(method string, kind Kind) {
	if c.observer != nil {
		c.observer.ObserveResponse(method, kind)
	}
}

func decodeEnvelope(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Version != schemaVersion {
		return &Error{Kind: KindInvalidResponse, Message: fmt.Sprintf("unsupported schema version %d", env.Version)}
	}
	if !env.Success {
		return &Error{Kind: KindInvalidResponse, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &Error{Kind: KindInvalidResponse, Message: "response data is missing"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("decode data: %w", err)}
	}
	if v, ok := out.(validatable); ok {
		if err := v.validate(); err != nil {
			return &Error{Kind: KindInvalidResponse, Err: err}
		}
	}
	return nil
}

func serverMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Message
}
