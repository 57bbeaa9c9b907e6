package mockapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

type payment struct {
	model.Payment
	owner         string
	accountNumber string
	hasRecipient  bool
}

type beneficiary struct {
	model.SavedBeneficiary
	owner         string
	accountNumber string
}

type createPaymentBody struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Provider       string `json:"provider"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type beneficiaryBody struct {
	BeneficiaryID string `json:"beneficiaryId"`
	FullName      string `json:"fullName"`
	BankName      string `json:"bankName"`
	SwiftCode     string `json:"swiftCode"`
	AccountNumber string `json:"accountNumber"`
	IBAN          string `json:"iban"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
	Save          bool   `json:"saveBeneficiary"`
}

type submitBody struct {
	Reference string `json:"reference"`
	Purpose   string `json:"purpose"`
}

type internationalBody struct {
	createPaymentBody
	submitBody
	Beneficiary beneficiaryBody `json:"beneficiary"`
}

type paymentRef struct {
	PaymentID string              `json:"paymentId"`
	Status    model.PaymentStatus `json:"status"`
}

func checkDraft(body createPaymentBody) string {
	switch {
	case !validation.IsValidAmount(body.Amount):
		return "invalid amount"
	case !validation.IsValidCurrency(body.Currency):
		return "unsupported currency"
	case body.Provider != "SWIFT":
		return "unsupported provider"
	case body.IdempotencyKey == "":
		return "idempotency key is required"
	}
	return ""
}

func checkSubmit(body submitBody) string {
	switch {
	case !validation.IsValidReference(body.Reference):
		return "invalid reference"
	case !validation.IsValidPurpose(body.Purpose):
		return "invalid purpose"
	}
	return ""
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	var body createPaymentBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := checkDraft(body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	info := authFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := info.userID + ":" + body.IdempotencyKey
	if id, ok := s.idempotency[key]; ok {
		writeData(w, http.StatusOK, paymentRef{PaymentID: id, Status: s.payments[id].Status})
		return
	}

	p := s.newPayment(info.userID, body)
	s.idempotency[key] = p.ID
	writeData(w, http.StatusCreated, paymentRef{PaymentID: p.ID, Status: p.Status})
}

// newPayment вызывается под s.mu.
func (s *Server) newPayment(owner string, body createPaymentBody) *payment {
	cents, _ := validation.ParseAmountCents(body.Amount)
	p := &payment{
		Payment: model.Payment{
			ID:           "P-" + strings.ToUpper(newID()[:8]),
			AmountCents:  cents,
			Currency:     body.Currency,
			Provider:     body.Provider,
			Status:       model.PaymentStatusDraft,
			CustomerName: s.accounts[owner].user.FullName,
			CreatedAt:    s.now(),
		},
		owner: owner,
	}
	s.payments[p.ID] = p
	return p
}

// applyBeneficiary вызывается под s.mu. Возвращает HTTP-статус и сообщение при ошибке.
func (s *Server) applyBeneficiary(owner string, p *payment, body beneficiaryBody) (int, string) {
	account := body.AccountNumber
	if body.BeneficiaryID != "" {
		saved, ok := s.beneficiaries[body.BeneficiaryID]
		if !ok || saved.owner != owner {
			return http.StatusNotFound, "beneficiary not found"
		}
		account = saved.accountNumber
	} else if !validation.IsValidAccountNumber(account) {
		return http.StatusBadRequest, "invalid account number"
	}

	switch {
	case !validation.IsValidFullName(body.FullName):
		return http.StatusBadRequest, "invalid beneficiary name"
	case !validation.IsValidBankName(body.BankName):
		return http.StatusBadRequest, "invalid bank name"
	case !validation.IsValidSWIFT(body.SwiftCode):
		return http.StatusBadRequest, "invalid swift code"
	case body.IBAN != "" && !validation.IsValidIBAN(body.IBAN):
		return http.StatusBadRequest, "invalid iban"
	case !validation.IsValidAddress(body.Address), !validation.IsValidCity(body.City),
		!validation.IsValidPostalCode(body.PostalCode), !validation.IsValidCountry(body.Country):
		return http.StatusBadRequest, "invalid beneficiary address"
	}

	p.BeneficiaryName = body.FullName
	p.SwiftCode = validation.FormatSWIFT(body.SwiftCode)
	p.AccountNumberMasked = validation.MaskAccountNumber(account)
	p.accountNumber = account
	p.hasRecipient = true

	if body.Save && body.BeneficiaryID == "" {
		s.saveBeneficiary(owner, body.FullName, body.BankName, account, body.SwiftCode)
	}
	return 0, ""
}

func (s *Server) updateBeneficiary(w http.ResponseWriter, r *http.Request) {
	var body beneficiaryBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info := authFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[chi.URLParam(r, "id")]
	if !ok || p.owner != info.userID {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if p.Status != model.PaymentStatusDraft {
		writeError(w, http.StatusConflict, "payment is no longer a draft")
		return
	}
	if status, msg := s.applyBeneficiary(info.userID, p, body); status != 0 {
		writeError(w, status, msg)
		return
	}
	writeOK(w)
}

func (s *Server) submitPayment(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := checkSubmit(body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	info := authFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[chi.URLParam(r, "id")]
	if !ok || p.owner != info.userID {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if p.Status != model.PaymentStatusDraft {
		writeError(w, http.StatusConflict, "payment is no longer a draft")
		return
	}
	if !p.hasRecipient {
		writeError(w, http.StatusBadRequest, "beneficiary details are missing")
		return
	}

	p.Reference = body.Reference
	p.Purpose = body.Purpose
	p.Status = model.PaymentStatusPendingVerification
	writeData(w, http.StatusOK, paymentRef{PaymentID: p.ID, Status: p.Status})
}

func (s *Server) createInternational(w http.ResponseWriter, r *http.Request) {
	var body internationalBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := checkDraft(body.createPaymentBody); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := checkSubmit(body.submitBody); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	info := authFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := info.userID + ":" + body.IdempotencyKey
	if id, ok := s.idempotency[key]; ok {
		writeData(w, http.StatusOK, paymentRef{PaymentID: id, Status: s.payments[id].Status})
		return
	}

	// Проверяем получателя до создания платежа, чтобы ошибка не оставляла черновик.
	scratch := &payment{}
	if status, msg := s.applyBeneficiary(info.userID, scratch, body.Beneficiary); status != 0 {
		writeError(w, status, msg)
		return
	}

	p := s.newPayment(info.userID, body.createPaymentBody)
	p.BeneficiaryName = scratch.BeneficiaryName
	p.SwiftCode = scratch.SwiftCode
	p.AccountNumberMasked = scratch.AccountNumberMasked
	p.accountNumber = scratch.accountNumber
	p.hasRecipient = true
	p.Reference = body.Reference
	p.Purpose = body.Purpose
	p.Status = model.PaymentStatusPendingVerification
	s.idempotency[key] = p.ID

	writeData(w, http.StatusCreated, paymentRef{PaymentID: p.ID, Status: p.Status})
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	owner := authFrom(r).userID
	s.writePage(w, r, func(p *payment) bool { return p.owner == owner })
}

func (s *Server) staffQueue(w http.ResponseWriter, r *http.Request) {
	var want model.PaymentStatus
	switch chi.URLParam(r, "queue") {
	case "queue":
		want = model.PaymentStatusPendingVerification
	case "verified":
		want = model.PaymentStatusVerified
	case "swift":
		want = model.PaymentStatusSubmittedToSwift
	default:
		writeError(w, http.StatusNotFound, "unknown queue")
		return
	}
	s.writePage(w, r, func(p *payment) bool { return p.Status == want })
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, match func(*payment) bool) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	s.mu.Lock()
	items := make([]model.Payment, 0)
	for _, p := range s.payments {
		if match(p) {
			items = append(items, p.Payment)
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	writeData(w, http.StatusOK, model.PaymentPage{Items: items[start:end], Page: page, Limit: limit, Total: total})
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var next model.PaymentStatus
	switch body.Action {
	case "approve":
		next = model.PaymentStatusVerified
	case "reject":
		next = model.PaymentStatusRejected
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	s.transition(w, chi.URLParam(r, "id"), model.PaymentStatusPendingVerification, next)
}

func (s *Server) submitSwift(w http.ResponseWriter, r *http.Request) {
	s.transition(w, chi.URLParam(r, "id"), model.PaymentStatusVerified, model.PaymentStatusSubmittedToSwift)
}

func (s *Server) transition(w http.ResponseWriter, id string, from, to model.PaymentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if p.Status != from {
		writeError(w, http.StatusConflict, "payment is in status "+string(p.Status))
		return
	}
	p.Status = to
	writeData(w, http.StatusOK, paymentRef{PaymentID: p.ID, Status: p.Status})
}

// saveBeneficiary вызывается под s.mu.
func (s *Server) saveBeneficiary(owner, name, bank, account, swift string) *beneficiary {
	b := &beneficiary{
		SavedBeneficiary: model.SavedBeneficiary{
			ID:                  newID(),
			FullName:            name,
			BankName:            bank,
			AccountNumberMasked: validation.MaskAccountNumber(account),
			SwiftCode:           validation.FormatSWIFT(swift),
			CreatedAt:           s.now(),
		},
		owner:         owner,
		accountNumber: account,
	}
	s.beneficiaries[b.ID] = b
	return b
}

func (s *Server) listBeneficiaries(w http.ResponseWriter, r *http.Request) {
	owner := authFrom(r).userID

	s.mu.Lock()
	items := make([]model.SavedBeneficiary, 0)
	for _, b := range s.beneficiaries {
		if b.owner == owner {
			items = append(items, b.SavedBeneficiary)
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].FullName < items[j].FullName })
	writeData(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createBeneficiary(w http.ResponseWriter, r *http.Request) {
	var body beneficiaryBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case !validation.IsValidFullName(body.FullName):
		writeError(w, http.StatusBadRequest, "invalid beneficiary name")
		return
	case !validation.IsValidBankName(body.BankName):
		writeError(w, http.StatusBadRequest, "invalid bank name")
		return
	case !validation.IsValidAccountNumber(body.AccountNumber):
		writeError(w, http.StatusBadRequest, "invalid account number")
		return
	case !validation.IsValidSWIFT(body.SwiftCode):
		writeError(w, http.StatusBadRequest, "invalid swift code")
		return
	}

	s.mu.Lock()
	b := s.saveBeneficiary(authFrom(r).userID, body.FullName, body.BankName, body.AccountNumber, body.SwiftCode)
	s.mu.Unlock()

	writeData(w, http.StatusCreated, b.SavedBeneficiary)
}

func (s *Server) deleteBeneficiary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner := authFrom(r).userID

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.beneficiaries[id]
	if !ok || b.owner != owner {
		writeError(w, http.StatusNotFound, "beneficiary not found")
		return
	}
	delete(s.beneficiaries, id)
	writeOK(w)
}
