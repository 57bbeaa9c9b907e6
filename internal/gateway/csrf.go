package gateway

import (
	"context"
	"errors"
	"net/http"
)

type csrfResponse struct {
	Token string `json:"token"`
}

func (r *csrfResponse) validate() error {
	if r.Token == "" {
		return errors.New("csrf token is empty")
	}
	return nil
}

// FetchCSRF запрашивает свежий CSRF-токен и кэширует его. Параллельные вызовы объединяются в один запрос.
func (c *Client) FetchCSRF(ctx context.Context) (string, error) {
	v, err, _ := c.csrfGroup.Do("csrf", func() (any, error) {
		var resp csrfResponse
		if err := c.do(ctx, http.MethodGet, "/csrf", nil, nil, &resp); err != nil {
			return "", err
		}

		c.csrfMu.Lock()
		c.csrfToken = resp.Token
		c.csrfMu.Unlock()

		return resp.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ensureCSRF возвращает кэшированный токен или получает его по требованию.
func (c *Client) ensureCSRF(ctx context.Context) (string, error) {
	if token := c.csrfValue(); token != "" {
		return token, nil
	}
	return c.FetchCSRF(ctx)
}

func (c *Client) csrfValue() string {
	c.csrfMu.RLock()
	defer c.csrfMu.RUnlock()
	return c.csrfToken
}

// ResetCSRF сбрасывает кэшированный токен, следующий изменяющий запрос получит новый.
func (c *Client) ResetCSRF() {
	c.csrfMu.Lock()
	c.csrfToken = ""
	c.csrfMu.Unlock()
}
