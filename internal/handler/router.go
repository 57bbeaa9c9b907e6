package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/nexuspay-client/internal/middleware"
	"github.com/mmeshcher/nexuspay-client/internal/session"
)

// SetupRouter настраивает HTTP-маршруты и middleware локального API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.RequireReady(h.service.Ready()))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireAccess(h.service, session.AccessPublicOnly))

				r.Post("/login", h.Login)
				r.Post("/register", h.Register)
				r.Post("/staff-login", h.StaffLogin)
				r.Post("/admin-login", h.AdminLogin)
				r.Post("/send-otp", h.SendOTP)
			})
			r.Post("/logout", h.Logout)
			r.Post("/extend", h.Extend)
			r.Post("/activity", h.Activity)
			r.Get("/expiry", h.GetExpiry)
		})
		r.Get("/guard/{route}", h.Guard)

		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences", h.PutPreferences)
		r.Get("/notifications", h.GetNotifications)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequireAccess(h.service, session.AccessProtected))

			r.Route("/wizard", func(r chi.Router) {
				r.Post("/", h.StartWizard)
				r.Get("/", h.GetWizard)
				r.Delete("/", h.CloseWizard)
				r.Put("/payment", h.PutPayment)
				r.Put("/beneficiary", h.PutBeneficiary)
				r.Get("/saved", h.GetSavedBeneficiaries)
				r.Post("/select-saved", h.SelectSaved)
				r.Post("/review", h.Review)
				r.Post("/next", h.Next)
				r.Post("/back", h.Back)
			})

			r.Get("/payments", h.GetPayments)
			r.Get("/beneficiaries", h.GetBeneficiaries)
			r.Post("/beneficiaries", h.CreateBeneficiary)
			r.Delete("/beneficiaries/{id}", h.DeleteBeneficiary)
		})

		r.Route("/staff", func(r chi.Router) {
			r.Use(custommiddleware.RequireAccess(h.service, session.AccessStaffOnly))

			r.Get("/{queue}", h.GetStaffQueue)
			r.Post("/payments/{id}/verify", h.VerifyPayment)
			r.Post("/payments/{id}/submit-swift", h.SubmitToSwift)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.RequireAccess(h.service, session.AccessAdminOnly))

			r.Get("/staff", h.GetStaff)
			r.Post("/staff", h.CreateStaff)
			r.Patch("/staff/{id}", h.UpdateStaff)
			r.Delete("/staff/{id}", h.DeleteStaff)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
