package wizard

import (
	"context"
	"fmt"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

var failureMessages = map[Step]string{
	StepPaymentDetails: "Failed to create payment draft. Please try again.",
	StepBeneficiary:    "Failed to save beneficiary details. Please try again.",
	StepReview:         "Failed to submit payment. Please try again.",
}

func validatePayment(d model.PaymentDetails) validation.FieldErrors {
	errs := validation.FieldErrors{}
	errs.Check(validation.IsValidAmount(d.Amount), "amount", "Enter a positive amount with at most two decimal places")
	errs.Check(validation.IsValidCurrency(d.Currency), "currency", "Select a supported currency")
	errs.Check(validation.IsValidReference(d.Reference), "reference", "Reference may contain letters, digits, spaces, hyphens and dots only")
	errs.Check(validation.IsValidPurpose(d.Purpose), "purpose", "Purpose is required (max 140 characters)")
	return errs
}

// validateBeneficiary проверяет получателя. Маскированный номер допустим только как
// ссылка на сохранённого получателя, во всех остальных случаях нужен полный номер.
func validateBeneficiary(mode BeneficiaryMode, account Account, d model.BeneficiaryDetails) validation.FieldErrors {
	errs := validation.FieldErrors{}

	switch acc := account.(type) {
	case SavedAccount:
		errs.Check(mode == BeneficiarySaved && acc.BeneficiaryID != "" && validation.IsMaskedAccountNumber(acc.Masked),
			"accountNumber", "Select a saved beneficiary")
	case FreshAccount:
		if mode == BeneficiarySaved {
			errs.Add("accountNumber", "Select a saved beneficiary")
		} else {
			errs.Check(validation.IsValidAccountNumber(acc.Number), "accountNumber", "Account number must be 6-18 digits")
		}
	default:
		errs.Add("accountNumber", "Account number must be 6-18 digits")
	}

	errs.Check(validation.IsValidFullName(d.FullName), "fullName", "Enter the beneficiary's full name")
	errs.Check(validation.IsValidBankName(d.BankName), "bankName", "Enter the bank name")
	errs.Check(validation.IsValidSWIFT(d.SwiftCode), "swiftCode", "SWIFT code must be 8 or 11 letters and digits")
	if d.IBAN != "" {
		errs.Check(validation.IsValidIBAN(d.IBAN), "iban", "IBAN is not valid")
	}
	errs.Check(validation.IsValidAddress(d.Address), "address", "Enter the beneficiary's address")
	errs.Check(validation.IsValidCity(d.City), "city", "Enter the city")
	errs.Check(validation.IsValidPostalCode(d.PostalCode), "postalCode", "Enter a valid postal code")
	errs.Check(validation.IsValidCountry(d.Country), "country", "Select a supported country")
	return errs
}

func (w *Wizard) stepErrorsLocked(step Step) validation.FieldErrors {
	switch step {
	case StepPaymentDetails:
		return validatePayment(w.payment)
	case StepBeneficiary:
		return validateBeneficiary(w.benMode, w.account, w.beneficiary)
	case StepReview:
		errs := validatePayment(w.payment)
		for f, msg := range validateBeneficiary(w.benMode, w.account, w.beneficiary) {
			errs.Add(f, msg)
		}
		errs.Check(w.reviewed, "reviewed", "Confirm that the payment details are correct")
		return errs
	}
	return validation.FieldErrors{}
}

// action выполняет сетевую часть шага без блокировки и возвращает функцию,
// применяющую результат под блокировкой.
type action func(ctx context.Context) (apply func(), err error)

// actionLocked возвращает сетевое действие шага или nil, если шаг локальный.
func (w *Wizard) actionLocked(step Step) action {
	if w.mode == ModeDeferred {
		if step == StepReview {
			return w.submitInternationalLocked()
		}
		return nil
	}

	switch step {
	case StepPaymentDetails:
		return w.createDraftLocked()
	case StepBeneficiary:
		return w.updateBeneficiaryLocked()
	case StepReview:
		return w.submitLocked()
	}
	return nil
}

// keyLocked возвращает ключ идемпотентности для запроса с данным содержимым.
// Повтор того же запроса получает тот же ключ, изменённый запрос получает новый.
func (w *Wizard) keyLocked(payload string) string {
	if w.keyPayload != "" && w.keyPayload != payload {
		w.idemKey = w.newKey()
	}
	w.keyPayload = payload
	return w.idemKey
}

func (w *Wizard) draftRequestLocked() gateway.CreatePaymentRequest {
	return gateway.CreatePaymentRequest{
		Amount:   w.payment.Amount,
		Currency: w.payment.Currency,
		Provider: gateway.ProviderSWIFT,
	}
}

// createDraftLocked создаёт черновик. Если черновик с теми же суммой и валютой уже
// создан, шаг проходит без запроса.
func (w *Wizard) createDraftLocked() action {
	if w.paymentID != "" && w.draftAmount == w.payment.Amount && w.draftCurrency == w.payment.Currency {
		return nil
	}

	req := w.draftRequestLocked()
	req.IdempotencyKey = w.keyLocked(req.Amount + "|" + req.Currency)
	return func(ctx context.Context) (func(), error) {
		ref, err := w.api.CreatePayment(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			w.paymentID = ref.PaymentID
			w.status = ref.Status
			w.draftAmount = req.Amount
			w.draftCurrency = req.Currency
		}, nil
	}
}

func (w *Wizard) beneficiaryUpdateLocked() gateway.BeneficiaryUpdate {
	b := w.beneficiary
	u := gateway.BeneficiaryUpdate{
		FullName:   b.FullName,
		BankName:   b.BankName,
		SwiftCode:  validation.FormatSWIFT(b.SwiftCode),
		IBAN:       validation.CompactIBAN(b.IBAN),
		Address:    b.Address,
		City:       b.City,
		PostalCode: b.PostalCode,
		Country:    b.Country,
	}
	switch acc := w.account.(type) {
	case SavedAccount:
		u.BeneficiaryID = acc.BeneficiaryID
	case FreshAccount:
		u.AccountNumber = acc.Number
		u.SaveToBook = w.benMode == BeneficiaryNew
	}
	return u
}

func (w *Wizard) updateBeneficiaryLocked() action {
	paymentID := w.paymentID
	req := w.beneficiaryUpdateLocked()
	return func(ctx context.Context) (func(), error) {
		if err := w.api.UpdateBeneficiary(ctx, paymentID, req); err != nil {
			return nil, err
		}
		return func() {}, nil
	}
}

func (w *Wizard) submitRequestLocked() gateway.SubmitPaymentRequest {
	return gateway.SubmitPaymentRequest{
		Reference: w.payment.Reference,
		Purpose:   w.payment.Purpose,
	}
}

func (w *Wizard) submitLocked() action {
	paymentID := w.paymentID
	req := w.submitRequestLocked()
	return func(ctx context.Context) (func(), error) {
		ref, err := w.api.SubmitPayment(ctx, paymentID, req)
		if err != nil {
			return nil, err
		}
		return func() {
			w.status = ref.Status
		}, nil
	}
}

func (w *Wizard) submitInternationalLocked() action {
	req := gateway.InternationalPaymentRequest{
		CreatePaymentRequest: w.draftRequestLocked(),
		SubmitPaymentRequest: w.submitRequestLocked(),
		Beneficiary:          w.beneficiaryUpdateLocked(),
	}
	req.IdempotencyKey = w.keyLocked(fmt.Sprintf("%+v", req))
	return func(ctx context.Context) (func(), error) {
		ref, err := w.api.SubmitInternational(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			w.paymentID = ref.PaymentID
			w.status = ref.Status
		}, nil
	}
}
