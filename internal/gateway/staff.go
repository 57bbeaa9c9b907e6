package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mmeshcher/nexuspay-client/internal/model"
)

// Queue: очередь платежей в портале сотрудника.
type Queue string

const (
	// QueuePending: платежи, ожидающие проверки.
	QueuePending Queue = "queue"
	// QueueVerified: проверенные платежи, ожидающие отправки в SWIFT.
	QueueVerified Queue = "verified"
	// QueueSwift: платежи, отправленные в SWIFT.
	QueueSwift Queue = "swift"
)

// Valid сообщает, известна ли очередь.
func (q Queue) Valid() bool {
	switch q {
	case QueuePending, QueueVerified, QueueSwift:
		return true
	}
	return false
}

// VerifyAction: решение сотрудника по платежу.
type VerifyAction string

const (
	VerifyApprove VerifyAction = "approve"
	VerifyReject  VerifyAction = "reject"
)

// StaffInput: данные для создания или изменения сотрудника.
type StaffInput struct {
	FullName string `json:"fullName,omitempty"`
	StaffID  string `json:"staffId,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

type staffList struct {
	Items []model.StaffMember `json:"items"`
}

func (l *staffList) validate() error {
	for i, s := range l.Items {
		if s.ID == "" || s.StaffID == "" {
			return fmt.Errorf("staff member %d is incomplete", i)
		}
	}
	return nil
}

type staffMember struct {
	model.StaffMember
}

func (s *staffMember) validate() error {
	if s.ID == "" || s.StaffID == "" {
		return errors.New("staff member is incomplete")
	}
	return nil
}

// StaffQueue возвращает очередь платежей для сотрудника. Выборка определяется ролью, а не владельцем.
func (c *Client) StaffQueue(ctx context.Context, queue Queue, page, limit int) (*model.PaymentPage, error) {
	if !queue.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown queue %q", queue)}
	}
	var res paymentPage
	if err := c.do(ctx, http.MethodGet, "/payments/staff/"+string(queue), pageQuery(page, limit), nil, &res); err != nil {
		return nil, err
	}
	return &res.PaymentPage, nil
}

// VerifyPayment одобряет или отклоняет платёж.
func (c *Client) VerifyPayment(ctx context.Context, paymentID string, action VerifyAction) (*PaymentRef, error) {
	if action != VerifyApprove && action != VerifyReject {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown action %q", action)}
	}
	body := struct {
		Action VerifyAction `json:"action"`
	}{Action: action}

	var res PaymentRef
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/verify", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitToSwift отправляет проверенный платёж в SWIFT.
func (c *Client) SubmitToSwift(ctx context.Context, paymentID string) (*PaymentRef, error) {
	var res PaymentRef
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/submit-swift", nil, nil, &res); err != nil {
		return nil, err
	}
	if err := expectStatus(&res, model.PaymentStatusSubmittedToSwift); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListStaff возвращает сотрудников для консоли администратора.
func (c *Client) ListStaff(ctx context.Context, search string) ([]model.StaffMember, error) {
	var q url.Values
	if search != "" {
		q = url.Values{"search": []string{search}}
	}
	var res staffList
	if err := c.do(ctx, http.MethodGet, "/admin/staff", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// CreateStaff создаёт сотрудника.
func (c *Client) CreateStaff(ctx context.Context, in StaffInput) (*model.StaffMember, error) {
	var res staffMember
	if err := c.do(ctx, http.MethodPost, "/admin/staff", nil, in, &res); err != nil {
		return nil, err
	}
	return &res.StaffMember, nil
}

// UpdateStaff изменяет данные сотрудника. Пустые поля не меняются.
func (c *Client) UpdateStaff(ctx context.Context, id string, in StaffInput) (*model.StaffMember, error) {
	var res staffMember
	if err := c.do(ctx, http.MethodPatch, "/admin/staff/"+url.PathEscape(id), nil, in, &res); err != nil {
		return nil, err
	}
	return &res.StaffMember, nil
}

// DeleteStaff удаляет сотрудника.
func (c *Client) DeleteStaff(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/staff/"+url.PathEscape(id), nil, nil, nil)
}
