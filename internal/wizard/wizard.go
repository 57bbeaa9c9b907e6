// Package wizard реализует пошаговый мастер международного платежа:
// данные платежа, получатель, проверка и отправка на верификацию.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

// Step: шаг мастера.
type Step int

const (
	StepPaymentDetails Step = iota
	StepBeneficiary
	StepReview
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepPaymentDetails:
		return "payment_details"
	case StepBeneficiary:
		return "beneficiary"
	case StepReview:
		return "review"
	case StepSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Mode: способ фиксации платежа на сервере.
type Mode string

const (
	// ModeIncremental фиксирует каждый шаг отдельным запросом к черновику.
	ModeIncremental Mode = "incremental"
	// ModeDeferred отправляет платёж целиком одним запросом на последнем шаге.
	ModeDeferred Mode = "deferred"
)

// Valid сообщает, известен ли режим.
func (m Mode) Valid() bool {
	return m == ModeIncremental || m == ModeDeferred
}

// BeneficiaryMode: способ указания получателя.
type BeneficiaryMode string

const (
	BeneficiarySaved   BeneficiaryMode = "saved"
	BeneficiaryNew     BeneficiaryMode = "new"
	BeneficiaryOneTime BeneficiaryMode = "oneTime"
)

// Valid сообщает, известен ли способ.
func (m BeneficiaryMode) Valid() bool {
	switch m {
	case BeneficiarySaved, BeneficiaryNew, BeneficiaryOneTime:
		return true
	}
	return false
}

// Account: счёт получателя: полный номер либо ссылка на сохранённого получателя.
type Account interface {
	isAccount()
}

// FreshAccount: полный номер счёта, введённый пользователем.
type FreshAccount struct {
	Number string
}

// SavedAccount: сохранённый получатель. Masked только показывается и на сервер не уходит,
// реальный номер сервер подставляет по BeneficiaryID.
type SavedAccount struct {
	BeneficiaryID string
	Masked        string
}

func (FreshAccount) isAccount() {}
func (SavedAccount) isAccount() {}

var (
	ErrClosed              = errors.New("wizard is closed")
	ErrBusy                = errors.New("wizard step is in flight")
	ErrStepInvalid         = errors.New("step data is invalid")
	ErrWrongStep           = errors.New("action is not available on the current step")
	ErrCompleted           = errors.New("payment is already submitted")
	ErrBeneficiaryNotFound = errors.New("saved beneficiary not found")
	ErrInvalidMode         = errors.New("unknown beneficiary mode")
)

// API: удалённые операции, которые выполняет мастер.
type API interface {
	CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.PaymentRef, error)
	UpdateBeneficiary(ctx context.Context, paymentID string, req gateway.BeneficiaryUpdate) error
	SubmitPayment(ctx context.Context, paymentID string, req gateway.SubmitPaymentRequest) (*gateway.PaymentRef, error)
	SubmitInternational(ctx context.Context, req gateway.InternationalPaymentRequest) (*gateway.PaymentRef, error)
	ListBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error)
}

// Observer получает результаты переходов между шагами.
type Observer interface {
	StepCompleted(mode Mode, step Step)
	StepFailed(mode Mode, step Step, kind gateway.Kind)
}

// Options: необязательные зависимости мастера.
type Options struct {
	Mode     Mode
	Notifier notify.Notifier
	Logger   *zap.Logger
	Observer Observer
	// NewKey выдаёт ключи идемпотентности. По умолчанию uuid.
	NewKey func() string
	// Currency: валюта платежа по умолчанию.
	Currency string
}

// Wizard: состояние одного прохода мастера. Безопасен для конкурентного использования,
// но одновременно выполняется не больше одного сетевого шага.
type Wizard struct {
	api      API
	mode     Mode
	notifier notify.Notifier
	logger   *zap.Logger
	observer Observer
	newKey   func() string

	mu          sync.Mutex
	step        Step
	payment     model.PaymentDetails
	benMode     BeneficiaryMode
	beneficiary model.BeneficiaryDetails
	account     Account
	reviewed    bool
	saved       []model.SavedBeneficiary

	idemKey       string
	keyPayload    string
	paymentID     string
	status        model.PaymentStatus
	draftAmount   string
	draftCurrency string

	busy      bool
	closed    bool
	lastError string
}

// New создаёт мастер на первом шаге.
func New(api API, opts Options) *Wizard {
	if !opts.Mode.Valid() {
		opts.Mode = ModeIncremental
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewKey == nil {
		opts.NewKey = uuid.NewString
	}
	if !validation.IsValidCurrency(opts.Currency) {
		opts.Currency = "USD"
	}

	return &Wizard{
		api:      api,
		mode:     opts.Mode,
		notifier: opts.Notifier,
		logger:   opts.Logger.With(zap.String("mode", string(opts.Mode))),
		observer: opts.Observer,
		newKey:   opts.NewKey,
		payment:  model.PaymentDetails{Currency: opts.Currency},
		benMode:  BeneficiaryNew,
		account:  FreshAccount{},
		idemKey:  opts.NewKey(),
	}
}

// Mode возвращает режим фиксации.
func (w *Wizard) Mode() Mode {
	return w.mode
}

// View: снимок мастера для интерфейса.
type View struct {
	Mode               Mode                     `json:"mode"`
	Step               Step                     `json:"step"`
	StepName           string                   `json:"stepName"`
	Payment            model.PaymentDetails     `json:"payment"`
	BeneficiaryMode    BeneficiaryMode          `json:"beneficiaryMode"`
	Beneficiary        model.BeneficiaryDetails `json:"beneficiary"`
	SavedBeneficiaryID string                   `json:"savedBeneficiaryId,omitempty"`
	ReadOnlyFields     []string                 `json:"readOnlyFields,omitempty"`
	Reviewed           bool                     `json:"reviewed"`
	Quote              *validation.Quote        `json:"quote,omitempty"`
	StepValid          bool                     `json:"stepValid"`
	CanNext            bool                     `json:"canNext"`
	CanBack            bool                     `json:"canBack"`
	Errors             validation.FieldErrors   `json:"errors,omitempty"`
	Busy               bool                     `json:"busy"`
	PaymentID          string                   `json:"paymentId,omitempty"`
	Status             model.PaymentStatus      `json:"status,omitempty"`
	LastError          string                   `json:"lastError,omitempty"`
}

// Поля получателя, которые при выборе сохранённого получателя только для чтения.
var savedReadOnly = []string{"fullName", "bankName", "swiftCode", "accountNumber"}

// View возвращает текущий снимок.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Wizard) viewLocked() View {
	v := View{
		Mode:            w.mode,
		Step:            w.step,
		StepName:        w.step.String(),
		Payment:         w.payment,
		BeneficiaryMode: w.benMode,
		Beneficiary:     w.beneficiary,
		Reviewed:        w.reviewed,
		Busy:            w.busy,
		PaymentID:       w.paymentID,
		Status:          w.status,
		LastError:       w.lastError,
	}

	switch acc := w.account.(type) {
	case SavedAccount:
		v.SavedBeneficiaryID = acc.BeneficiaryID
		v.Beneficiary.AccountNumber = acc.Masked
		v.ReadOnlyFields = savedReadOnly
	case FreshAccount:
		v.Beneficiary.AccountNumber = acc.Number
	}

	if cents, err := validation.ParseAmountCents(w.payment.Amount); err == nil && validation.IsValidCurrency(w.payment.Currency) {
		q := validation.EstimateFees(cents, w.payment.Currency)
		v.Quote = &q
	}

	if w.step != StepSubmitted {
		errs := w.stepErrorsLocked(w.step)
		v.StepValid = len(errs) == 0
		if !v.StepValid {
			v.Errors = errs
		}
		v.CanNext = v.StepValid && !w.busy && !w.closed
		v.CanBack = (w.step == StepBeneficiary || w.step == StepReview) && !w.busy && !w.closed
	}
	return v
}

// editableLocked проверяет, что данные шага можно менять прямо сейчас.
func (w *Wizard) editableLocked(step Step) error {
	switch {
	case w.closed:
		return ErrClosed
	case w.busy:
		return ErrBusy
	case w.step == StepSubmitted:
		return ErrCompleted
	case w.step != step:
		return ErrWrongStep
	}
	return nil
}

// SetPaymentDetails заменяет данные первого шага.
func (w *Wizard) SetPaymentDetails(d model.PaymentDetails) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editableLocked(StepPaymentDetails); err != nil {
		return w.viewLocked(), err
	}
	w.payment = model.PaymentDetails{
		Amount:    validation.SanitizeText(d.Amount),
		Currency:  validation.SanitizeText(d.Currency),
		Reference: validation.SanitizeText(d.Reference),
		Purpose:   validation.SanitizeText(d.Purpose),
	}
	w.lastError = ""
	return w.viewLocked(), nil
}

// SetBeneficiaryMode переключает способ указания получателя. При уходе с сохранённого
// получателя маскированный номер сбрасывается и должен быть введён заново.
func (w *Wizard) SetBeneficiaryMode(mode BeneficiaryMode) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !mode.Valid() {
		return w.viewLocked(), ErrInvalidMode
	}
	if err := w.editableLocked(StepBeneficiary); err != nil {
		return w.viewLocked(), err
	}
	if mode != BeneficiarySaved {
		if _, ok := w.account.(SavedAccount); ok {
			w.account = FreshAccount{}
		}
	}
	w.benMode = mode
	w.lastError = ""
	return w.viewLocked(), nil
}

// SetBeneficiary заменяет данные получателя. Для сохранённого получателя меняются
// только IBAN и адрес, остальные поля только для чтения.
func (w *Wizard) SetBeneficiary(d model.BeneficiaryDetails) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editableLocked(StepBeneficiary); err != nil {
		return w.viewLocked(), err
	}

	b := &w.beneficiary
	b.IBAN = validation.SanitizeText(d.IBAN)
	b.Address = validation.SanitizeText(d.Address)
	b.City = validation.SanitizeText(d.City)
	b.PostalCode = validation.SanitizeText(d.PostalCode)
	b.Country = validation.SanitizeText(d.Country)

	if _, ok := w.account.(SavedAccount); !ok || w.benMode != BeneficiarySaved {
		b.FullName = validation.SanitizeText(d.FullName)
		b.BankName = validation.SanitizeText(d.BankName)
		b.SwiftCode = validation.SanitizeText(d.SwiftCode)
		w.account = FreshAccount{Number: validation.SanitizeText(d.AccountNumber)}
	}
	w.lastError = ""
	return w.viewLocked(), nil
}

// SavedBeneficiaries возвращает сохранённых получателей, загружая их при первом обращении.
func (w *Wizard) SavedBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.saved != nil {
		out := append([]model.SavedBeneficiary(nil), w.saved...)
		w.mu.Unlock()
		return out, nil
	}
	w.mu.Unlock()

	items, err := w.api.ListBeneficiaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	if items == nil {
		items = []model.SavedBeneficiary{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	w.saved = items
	return append([]model.SavedBeneficiary(nil), items...), nil
}

// SelectSaved выбирает сохранённого получателя: поля личности заполняются из него,
// IBAN очищается, адрес остаётся обязательным.
func (w *Wizard) SelectSaved(ctx context.Context, id string) (View, error) {
	if _, err := w.SavedBeneficiaries(ctx); err != nil {
		return w.View(), err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editableLocked(StepBeneficiary); err != nil {
		return w.viewLocked(), err
	}

	for _, s := range w.saved {
		if s.ID != id {
			continue
		}
		w.benMode = BeneficiarySaved
		w.beneficiary.FullName = s.FullName
		w.beneficiary.BankName = s.BankName
		w.beneficiary.SwiftCode = s.SwiftCode
		w.beneficiary.AccountNumber = ""
		w.beneficiary.IBAN = ""
		w.account = SavedAccount{BeneficiaryID: s.ID, Masked: s.AccountNumberMasked}
		w.lastError = ""
		w.logger.Debug("saved beneficiary selected",
			zap.String("beneficiary_id", s.ID),
			zap.String("account", s.AccountNumberMasked))
		return w.viewLocked(), nil
	}
	return w.viewLocked(), ErrBeneficiaryNotFound
}

// SetReviewed фиксирует подтверждение пользователя на шаге проверки.
func (w *Wizard) SetReviewed(ok bool) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editableLocked(StepReview); err != nil {
		return w.viewLocked(), err
	}
	w.reviewed = ok
	return w.viewLocked(), nil
}

// Back возвращает на предыдущий, уже пройденный шаг.
func (w *Wizard) Back() (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return w.viewLocked(), ErrClosed
	case w.busy:
		return w.viewLocked(), ErrBusy
	case w.step == StepSubmitted:
		return w.viewLocked(), ErrCompleted
	case w.step == StepPaymentDetails:
		return w.viewLocked(), ErrWrongStep
	}
	w.step--
	w.reviewed = false
	w.lastError = ""
	return w.viewLocked(), nil
}

// Next проверяет текущий шаг, выполняет его сетевое действие и переходит дальше.
// При ошибке мастер остаётся на шаге, а сообщение сервера попадает в LastError.
func (w *Wizard) Next(ctx context.Context) (View, error) {
	w.mu.Lock()

	switch {
	case w.closed:
		w.mu.Unlock()
		return View{}, ErrClosed
	case w.busy:
		v := w.viewLocked()
		w.mu.Unlock()
		return v, ErrBusy
	case w.step == StepSubmitted:
		v := w.viewLocked()
		w.mu.Unlock()
		return v, ErrCompleted
	}

	step := w.step
	if errs := w.stepErrorsLocked(step); len(errs) > 0 {
		v := w.viewLocked()
		w.mu.Unlock()
		return v, fmt.Errorf("%w: %w", ErrStepInvalid, errs)
	}

	action := w.actionLocked(step)
	if action == nil {
		w.advanceLocked(step)
		v := w.viewLocked()
		w.mu.Unlock()
		return v, nil
	}

	w.busy = true
	w.lastError = ""
	w.mu.Unlock()

	apply, err := action(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.busy = false
	if w.closed {
		w.logger.Debug("discarding response after close", zap.Stringer("step", step))
		return View{}, ErrClosed
	}
	if err != nil {
		w.lastError = gateway.UserMessage(err, failureMessages[step])
		w.notifier.Notify(notify.SeverityError, w.lastError)
		if w.observer != nil {
			w.observer.StepFailed(w.mode, step, gateway.KindOf(err))
		}
		w.logger.Warn("wizard step failed", zap.Stringer("step", step), zap.Error(err))
		return w.viewLocked(), fmt.Errorf("%s: %w", step, err)
	}

	apply()
	w.advanceLocked(step)
	return w.viewLocked(), nil
}

func (w *Wizard) advanceLocked(from Step) {
	w.step = from + 1
	w.lastError = ""
	if w.observer != nil {
		w.observer.StepCompleted(w.mode, from)
	}
	w.logger.Debug("wizard step completed",
		zap.Stringer("step", from),
		zap.String("payment_id", w.paymentID))

	if w.step == StepSubmitted {
		w.notifier.Notify(notify.SeveritySuccess, "Payment submitted successfully and is pending verification.")
		w.logger.Info("payment submitted", zap.String("payment_id", w.paymentID))
	}
}

// Close завершает мастер. Ответы, пришедшие после закрытия, отбрасываются.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Closed сообщает, закрыт ли мастер.
func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
