package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

// NewBeneficiary: данные для сохранения получателя. Номер счёта передаётся полностью один раз.
type NewBeneficiary struct {
	FullName      string `json:"fullName"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	SwiftCode     string `json:"swiftCode"`
}

type beneficiaryList struct {
	Items []model.SavedBeneficiary `json:"items"`
}

func (l *beneficiaryList) validate() error {
	for i := range l.Items {
		if err := validateSaved(&l.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

type savedBeneficiary struct {
	model.SavedBeneficiary
}

func (b *savedBeneficiary) validate() error {
	return validateSaved(&b.SavedBeneficiary)
}

func validateSaved(b *model.SavedBeneficiary) error {
	if b.ID == "" {
		return errors.New("beneficiary id is empty")
	}
	if !validation.IsMaskedAccountNumber(b.AccountNumberMasked) {
		return fmt.Errorf("beneficiary %s carries an unmasked account number", b.ID)
	}
	return nil
}

// ListBeneficiaries возвращает сохранённых получателей текущего пользователя.
func (c *Client) ListBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error) {
	var res beneficiaryList
	if err := c.do(ctx, http.MethodGet, "/beneficiaries", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// CreateBeneficiary сохраняет получателя.
func (c *Client) CreateBeneficiary(ctx context.Context, in NewBeneficiary) (*model.SavedBeneficiary, error) {
	var res savedBeneficiary
	if err := c.do(ctx, http.MethodPost, "/beneficiaries", nil, in, &res); err != nil {
		return nil, err
	}
	return &res.SavedBeneficiary, nil
}

// DeleteBeneficiary удаляет сохранённого получателя.
func (c *Client) DeleteBeneficiary(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/beneficiaries/"+url.PathEscape(id), nil, nil, nil)
}
