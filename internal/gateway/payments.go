package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

// ProviderSWIFT: провайдер международных переводов.
const ProviderSWIFT = "SWIFT"

// CreatePaymentRequest создаёт черновик платежа. Повтор с тем же ключом идемпотентности
// не создаёт второй черновик.
type CreatePaymentRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Provider       string `json:"provider"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// BeneficiaryUpdate: данные получателя черновика. Для сохранённого получателя передаётся
// BeneficiaryID, а номер счёта сервер подставляет сам.
type BeneficiaryUpdate struct {
	BeneficiaryID string `json:"beneficiaryId,omitempty"`
	FullName      string `json:"fullName"`
	BankName      string `json:"bankName"`
	SwiftCode     string `json:"swiftCode"`
	AccountNumber string `json:"accountNumber,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
	SaveToBook    bool   `json:"saveBeneficiary,omitempty"`
}

// SubmitPaymentRequest отправляет черновик на проверку.
type SubmitPaymentRequest struct {
	Reference string `json:"reference"`
	Purpose   string `json:"purpose"`
}

// InternationalPaymentRequest: платёж целиком одним запросом (режим отложенной фиксации).
type InternationalPaymentRequest struct {
	CreatePaymentRequest
	SubmitPaymentRequest
	Beneficiary BeneficiaryUpdate `json:"beneficiary"`
}

// PaymentRef: ссылка на платёж и его статус после изменяющего вызова.
type PaymentRef struct {
	PaymentID string              `json:"paymentId"`
	Status    model.PaymentStatus `json:"status"`
}

func (r *PaymentRef) validate() error {
	if r.PaymentID == "" {
		return errors.New("payment id is empty")
	}
	if r.Status == "" {
		return errors.New("payment status is empty")
	}
	return nil
}

type paymentPage struct {
	model.PaymentPage
}

func (p *paymentPage) validate() error {
	for i, item := range p.Items {
		if item.ID == "" {
			return fmt.Errorf("payment %d has no id", i)
		}
		if item.AccountNumberMasked != "" && !validation.IsMaskedAccountNumber(item.AccountNumberMasked) {
			return fmt.Errorf("payment %s carries an unmasked account number", item.ID)
		}
	}
	return nil
}

func pageQuery(page, limit int) url.Values {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func expectStatus(ref *PaymentRef, want model.PaymentStatus) error {
	if ref.Status != want {
		return &Error{Kind: KindInvalidResponse, Message: fmt.Sprintf("unexpected payment status %q, want %q", ref.Status, want)}
	}
	return nil
}

// CreatePayment создаёт черновик платежа.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentRef, error) {
	var res PaymentRef
	if err := c.do(ctx, http.MethodPost, "/payments", nil, req, &res); err != nil {
		return nil, err
	}
	if err := expectStatus(&res, model.PaymentStatusDraft); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateBeneficiary записывает получателя в черновик платежа.
func (c *Client) UpdateBeneficiary(ctx context.Context, paymentID string, req BeneficiaryUpdate) error {
	return c.do(ctx, http.MethodPut, "/payments/"+url.PathEscape(paymentID)+"/beneficiary", nil, req, nil)
}

// SubmitPayment отправляет черновик на проверку сотрудником.
func (c *Client) SubmitPayment(ctx context.Context, paymentID string, req SubmitPaymentRequest) (*PaymentRef, error) {
	var res PaymentRef
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/submit", nil, req, &res); err != nil {
		return nil, err
	}
	if err := expectStatus(&res, model.PaymentStatusPendingVerification); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitInternational отправляет платёж целиком одним запросом.
func (c *Client) SubmitInternational(ctx context.Context, req InternationalPaymentRequest) (*PaymentRef, error) {
	var res PaymentRef
	if err := c.do(ctx, http.MethodPost, "/payments/international", nil, req, &res); err != nil {
		return nil, err
	}
	if err := expectStatus(&res, model.PaymentStatusPendingVerification); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListPayments возвращает платежи текущего пользователя постранично.
func (c *Client) ListPayments(ctx context.Context, page, limit int) (*model.PaymentPage, error) {
	var res paymentPage
	if err := c.do(ctx, http.MethodGet, "/payments", pageQuery(page, limit), nil, &res); err != nil {
		return nil, err
	}
	return &res.PaymentPage, nil
}
