package payout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/risapp/ris-api/internal/domain/admin"
	"github.com/risapp/ris-api/internal/domain/beneficiary"
	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/middleware"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/response"
	"github.com/risapp/ris-api/internal/pkg/twilio"
	"github.com/risapp/ris-api/internal/pkg/validator"
)

type Handler struct {
	svc           *Service
	beneficiaries *beneficiary.Repository
}

func NewHandler(svc *Service, beneficiaries *beneficiary.Repository) *Handler {
	return &Handler{svc: svc, beneficiaries: beneficiaries}
}

type createRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	BeneficiaryID string `json:"beneficiary_id" validate:"omitempty,uuid"`

	// Inline destination, used when no saved beneficiary is referenced.
	FullName      string `json:"full_name" validate:"required_without=BeneficiaryID,omitempty,min=3,max=120"`
	DocumentID    string `json:"document_id" validate:"required_without=BeneficiaryID,omitempty,min=5,max=20"`
	BankCode      string `json:"bank_code" validate:"required_without=BeneficiaryID,omitempty,bank_code"`
	BankName      string `json:"bank_name" validate:"required_without=BeneficiaryID,omitempty,max=120"`
	AccountNumber string `json:"account_number" validate:"required_without=BeneficiaryID,omitempty,min=10,max=30"`
	Phone         string `json:"phone" validate:"omitempty,max=20"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	snapshot, err := h.resolveBeneficiary(r, accountID, &req)
	if err != nil {
		if errors.Is(err, beneficiary.ErrNotFound) {
			response.NotFound(w, "beneficiary not found")
			return
		}
		response.InternalError(w)
		return
	}

	tx, err := h.svc.Create(r.Context(), settlement.PayoutRequest{
		AccountID:   accountID,
		AmountIn:    req.Amount,
		Beneficiary: *snapshot,
	})
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrInvalidAmount):
			response.BadRequest(w, "amount must be greater than zero")
		case errors.Is(err, settlement.ErrInsufficientBalance):
			response.Conflict(w, "insufficient balance")
		default:
			log.Error().Err(err).Msg("payout creation failed")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, tx)
}

func (h *Handler) resolveBeneficiary(r *http.Request, accountID uuid.UUID, req *createRequest) (*settlement.BeneficiarySnapshot, error) {
	if req.BeneficiaryID != "" {
		id, _ := uuid.Parse(req.BeneficiaryID)
		saved, err := h.beneficiaries.GetByID(r.Context(), accountID, id)
		if err != nil {
			return nil, err
		}
		return &settlement.BeneficiarySnapshot{
			FullName:      saved.FullName,
			DocumentID:    saved.DocumentID,
			BankCode:      saved.BankCode,
			BankName:      saved.BankName,
			AccountNumber: saved.AccountNumber,
			Phone:         saved.Phone,
		}, nil
	}
	return &settlement.BeneficiarySnapshot{
		FullName:      req.FullName,
		DocumentID:    req.DocumentID,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Phone:         req.Phone,
	}, nil
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.Pending(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, txs)
}

// Process handles the admin decision as a multipart form so an
// approval can carry the transfer receipt image.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	operatorID := middleware.GetAccountID(r.Context())

	if err := r.ParseMultipartForm(imaging.MaxFileSize); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	txID, err := uuid.Parse(r.FormValue("transaction_id"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}
	action := r.FormValue("action")

	var applied bool
	switch action {
	case "approve":
		file, _, ferr := r.FormFile("proof")
		if ferr == nil {
			defer file.Close()
			applied, err = h.svc.Complete(r.Context(), operatorID, txID, file)
		} else {
			applied, err = h.svc.Complete(r.Context(), operatorID, txID, nil)
		}
	case "reject":
		applied, err = h.svc.Reject(r.Context(), operatorID, txID, r.FormValue("reason"))
	default:
		response.BadRequest(w, "action must be approve or reject")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidProofImage):
			response.BadRequest(w, "proof image could not be decoded")
		case errors.Is(err, settlement.ErrNotFound):
			response.NotFound(w, "transaction not found")
		case errors.Is(err, settlement.ErrWrongKind):
			response.BadRequest(w, "transaction is not a payout")
		default:
			log.Error().Err(err).Msg("payout processing failed")
			response.InternalError(w)
		}
		return
	}
	if !applied {
		response.Conflict(w, "transaction already processed")
		return
	}
	response.OK(w, map[string]interface{}{"applied": true})
}

// WhatsAppWebhook ingests the Twilio form post for the chat-image
// trigger. Twilio expects a 2xx regardless of the business outcome.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	msg, err := twilio.ParseInbound(r)
	if err != nil {
		response.BadRequest(w, "invalid webhook form")
		return
	}

	result, err := h.svc.HandleChatImage(r.Context(), msg)
	if err != nil {
		log.Error().Err(err).Str("message_sid", msg.MessageSID).Msg("chat image processing failed")
		response.InternalError(w)
		return
	}

	if result.Reply != "" && h.svc.whatsapp != nil && h.svc.whatsapp.Enabled() {
		if err := h.svc.whatsapp.SendMessage(r.Context(), msg.From, result.Reply); err != nil {
			log.Warn().Err(err).Str("to", msg.From).Msg("chat reply failed")
		}
	}

	response.OK(w, map[string]interface{}{"received": true})
}

// Routes mounts the user-facing withdrawal endpoints.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/create", h.Create)
	return r
}

// AdminRoutes mounts the operator payout queue.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(admin.RequirePermission(admin.PermissionProcessPayouts))
	r.Get("/pending", h.Pending)
	r.Post("/process", h.Process)
	return r
}
