package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
)

type verifyRequest struct {
	Action gateway.VerifyAction `json:"action"`
}

// GetPayments возвращает страницу платежей клиента.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	res, err := h.service.ListPayments(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, err, "Could not load payments.")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetBeneficiaries возвращает сохранённых получателей.
func (h *Handler) GetBeneficiaries(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListBeneficiaries(r.Context())
	if err != nil {
		h.writeError(w, err, "Could not load beneficiaries.")
		return
	}
	if items == nil {
		items = []model.SavedBeneficiary{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateBeneficiary сохраняет получателя в адресной книге.
func (h *Handler) CreateBeneficiary(w http.ResponseWriter, r *http.Request) {
	var req gateway.NewBeneficiary
	if !decode(w, r, &req) {
		return
	}
	b, err := h.service.CreateBeneficiary(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Could not save the beneficiary.")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// DeleteBeneficiary удаляет получателя.
func (h *Handler) DeleteBeneficiary(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBeneficiary(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "Could not delete the beneficiary.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStaffQueue возвращает страницу очереди портала сотрудника.
func (h *Handler) GetStaffQueue(w http.ResponseWriter, r *http.Request) {
	queue := gateway.Queue(chi.URLParam(r, "queue"))
	if !queue.Valid() {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	page, limit := pageParams(r)
	res, err := h.service.StaffQueue(r.Context(), queue, page, limit)
	if err != nil {
		h.writeError(w, err, "Could not load the queue.")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyPayment одобряет или отклоняет платёж.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Action != gateway.VerifyApprove && req.Action != gateway.VerifyReject {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ref, err := h.service.VerifyPayment(r.Context(), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		h.writeError(w, err, "Could not update the payment.")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// SubmitToSwift отправляет проверенный платёж в SWIFT.
func (h *Handler) SubmitToSwift(w http.ResponseWriter, r *http.Request) {
	ref, err := h.service.SubmitToSwift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "Could not submit the payment to SWIFT.")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// GetStaff возвращает сотрудников, отфильтрованных по search.
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListStaff(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, err, "Could not load staff.")
		return
	}
	if items == nil {
		items = []model.StaffMember{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateStaff создаёт учётную запись сотрудника.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req gateway.StaffInput
	if !decode(w, r, &req) {
		return
	}
	m, err := h.service.CreateStaff(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Could not create the staff member.")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateStaff изменяет учётную запись сотрудника.
func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req gateway.StaffInput
	if !decode(w, r, &req) {
		return
	}
	m, err := h.service.UpdateStaff(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err, "Could not update the staff member.")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteStaff удаляет учётную запись сотрудника.
func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteStaff(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "Could not delete the staff member.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
