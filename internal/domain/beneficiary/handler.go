package beneficiary

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/risapp/ris-api/internal/middleware"
	"github.com/risapp/ris-api/internal/pkg/response"
	"github.com/risapp/ris-api/internal/pkg/validator"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type beneficiaryRequest struct {
	FullName      string `json:"full_name" validate:"required,min=3,max=120"`
	DocumentID    string `json:"document_id" validate:"required,min=5,max=20"`
	BankCode      string `json:"bank_code" validate:"required,bank_code"`
	BankName      string `json:"bank_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,min=10,max=30"`
	Phone         string `json:"phone" validate:"omitempty,max=20"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	var req beneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	b := &Beneficiary{
		ID:            uuid.New(),
		AccountID:     accountID,
		FullName:      req.FullName,
		DocumentID:    req.DocumentID,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Phone:         req.Phone,
	}
	if err := h.repo.Create(r.Context(), b); err != nil {
		response.InternalError(w)
		return
	}
	response.Created(w, b)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	list, err := h.repo.ListByAccount(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}

	b, err := h.repo.GetByID(r.Context(), accountID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "beneficiary not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, b)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}

	var req beneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	b := &Beneficiary{
		ID:            id,
		AccountID:     accountID,
		FullName:      req.FullName,
		DocumentID:    req.DocumentID,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Phone:         req.Phone,
	}
	if err := h.repo.Update(r.Context(), b); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "beneficiary not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, b)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}

	if err := h.repo.Delete(r.Context(), accountID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "beneficiary not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"deleted": true})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}
