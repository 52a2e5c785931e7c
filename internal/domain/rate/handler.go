package rate

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/risapp/ris-api/internal/domain/admin"
	"github.com/risapp/ris-api/internal/middleware"
	"github.com/risapp/ris-api/internal/pkg/response"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	rate, err := h.repo.Current(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, rate)
}

type updateRateRequest struct {
	Rate string `json:"rate"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	newRate, err := decimal.NewFromString(req.Rate)
	if err != nil || !newRate.IsPositive() {
		response.BadRequest(w, "rate must be a positive decimal")
		return
	}

	updatedBy := middleware.GetAccountID(r.Context())
	if err := h.repo.Replace(r.Context(), newRate, updatedBy); err != nil {
		response.InternalError(w)
		return
	}

	rate, err := h.repo.Current(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, rate)
}

// Routes mounts the rate endpoints. Reading the rate is public so the
// app can show conversions before login; updating it is admin only.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Current)
	r.With(authMiddleware, admin.RequirePermission(admin.PermissionManageRates)).Post("/", h.Update)
	return r
}
