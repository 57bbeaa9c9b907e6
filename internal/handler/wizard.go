package handler

import (
	"errors"
	"net/http"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/wizard"
)

type startWizardRequest struct {
	Mode wizard.Mode `json:"mode"`
}

type beneficiaryRequest struct {
	Mode    wizard.BeneficiaryMode    `json:"mode"`
	Details *model.BeneficiaryDetails `json:"details"`
}

type selectSavedRequest struct {
	ID string `json:"id"`
}

type reviewRequest struct {
	Reviewed bool `json:"reviewed"`
}

// StartWizard запускает новый мастер платежа. Пустое тело означает режим по умолчанию.
func (h *Handler) StartWizard(w http.ResponseWriter, r *http.Request) {
	var req startWizardRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.Mode != "" && !req.Mode.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, h.service.StartWizard(r.Context(), req.Mode))
}

// GetWizard возвращает снимок текущего мастера.
func (h *Handler) GetWizard(w http.ResponseWriter, r *http.Request) {
	wz, err := h.service.Wizard()
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, wz.View())
}

// CloseWizard закрывает мастер. Поздние ответы сервера после этого не применяются.
func (h *Handler) CloseWizard(w http.ResponseWriter, r *http.Request) {
	h.service.CloseWizard()
	w.WriteHeader(http.StatusNoContent)
}

// withWizard вызывает fn для текущего мастера и пишет полученный снимок.
func (h *Handler) withWizard(w http.ResponseWriter, fallback string, fn func(*wizard.Wizard) (wizard.View, error)) {
	wz, err := h.service.Wizard()
	if err != nil {
		h.writeError(w, err, fallback)
		return
	}
	v, err := fn(wz)
	if err != nil {
		if errors.Is(err, wizard.ErrStepInvalid) {
			writeJSON(w, http.StatusUnprocessableEntity, v)
			return
		}
		if status, ok := gatewayStatus(gateway.KindOf(err)); ok && v.LastError != "" {
			writeJSON(w, status, v)
			return
		}
		h.writeError(w, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// PutPayment заменяет данные первого шага.
func (h *Handler) PutPayment(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentDetails
	if !decode(w, r, &req) {
		return
	}
	h.withWizard(w, "", func(wz *wizard.Wizard) (wizard.View, error) {
		return wz.SetPaymentDetails(req)
	})
}

// PutBeneficiary меняет режим выбора получателя и (или) его данные.
func (h *Handler) PutBeneficiary(w http.ResponseWriter, r *http.Request) {
	var req beneficiaryRequest
	if !decode(w, r, &req) {
		return
	}
	h.withWizard(w, "", func(wz *wizard.Wizard) (wizard.View, error) {
		v := wz.View()
		var err error
		if req.Mode != "" {
			if v, err = wz.SetBeneficiaryMode(req.Mode); err != nil {
				return v, err
			}
		}
		if req.Details != nil {
			return wz.SetBeneficiary(*req.Details)
		}
		return v, nil
	})
}

// GetSavedBeneficiaries возвращает сохранённых получателей для выбора в мастере.
func (h *Handler) GetSavedBeneficiaries(w http.ResponseWriter, r *http.Request) {
	wz, err := h.service.Wizard()
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	items, err := wz.SavedBeneficiaries(r.Context())
	if err != nil {
		h.writeError(w, err, "Could not load saved beneficiaries.")
		return
	}
	if items == nil {
		items = []model.SavedBeneficiary{}
	}
	writeJSON(w, http.StatusOK, items)
}

// SelectSaved выбирает сохранённого получателя.
func (h *Handler) SelectSaved(w http.ResponseWriter, r *http.Request) {
	var req selectSavedRequest
	if !decode(w, r, &req) {
		return
	}
	h.withWizard(w, "Could not load saved beneficiaries.", func(wz *wizard.Wizard) (wizard.View, error) {
		return wz.SelectSaved(r.Context(), req.ID)
	})
}

// Review отмечает подтверждение проверки данных на последнем шаге.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decode(w, r, &req) {
		return
	}
	h.withWizard(w, "", func(wz *wizard.Wizard) (wizard.View, error) {
		return wz.SetReviewed(req.Reviewed)
	})
}

// Next выполняет действие текущего шага. При ошибке сервера в теле ответа снимок мастера с lastError.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.withWizard(w, "Payment could not be processed. Please try again.", func(wz *wizard.Wizard) (wizard.View, error) {
		return wz.Next(r.Context())
	})
}

// Back возвращает мастер на предыдущий шаг.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.withWizard(w, "", func(wz *wizard.Wizard) (wizard.View, error) {
		return wz.Back()
	})
}
