package topup

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/risapp/ris-api/internal/domain/account"
	"github.com/risapp/ris-api/internal/domain/admin"
	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/middleware"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/mercadopago"
	"github.com/risapp/ris-api/internal/pkg/response"
	"github.com/risapp/ris-api/internal/pkg/validator"
)

type Handler struct {
	svc      *Service
	accounts *account.Repository
}

func NewHandler(svc *Service, accounts *account.Repository) *Handler {
	return &Handler{svc: svc, accounts: accounts}
}

type createRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	CPF       string `json:"cpf" validate:"required,cpf"`
	FirstName string `json:"first_name" validate:"omitempty,max=60"`
	LastName  string `json:"last_name" validate:"omitempty,max=60"`
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

	acc, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	firstName, lastName := req.FirstName, req.LastName
	if firstName == "" {
		firstName, lastName = splitName(acc.Name)
	}

	tx, err := h.svc.Create(r.Context(), settlement.TopupRequest{
		AccountID:      accountID,
		AmountIn:       req.Amount,
		PayerEmail:     acc.Email,
		PayerFirstName: firstName,
		PayerLastName:  lastName,
		PayerCPF:       req.CPF,
	})
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrInvalidAmount):
			response.BadRequest(w, "amount outside allowed top-up bounds")
		case errors.Is(err, settlement.ErrDuplicatePending):
			response.Conflict(w, "a pending top-up with this amount already exists")
		default:
			log.Error().Err(err).Msg("topup creation failed")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, tx)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}

	tx, err := h.svc.Status(r.Context(), accountID, txID)
	if err != nil {
		h.writeTxError(w, err)
		return
	}
	response.OK(w, tx)
}

func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	if err := r.ParseMultipartForm(imaging.MaxFileSize); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	txID, err := uuid.Parse(r.FormValue("transaction_id"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		response.BadRequest(w, "proof file is required")
		return
	}
	defer file.Close()

	if header.Size > imaging.MaxFileSize {
		response.BadRequest(w, "proof file too large")
		return
	}
	if !imaging.ValidateType(header.Filename) {
		response.BadRequest(w, "proof must be an image")
		return
	}

	tx, err := h.svc.SubmitProof(r.Context(), accountID, txID, file)
	if err != nil {
		if errors.Is(err, ErrInvalidProofImage) {
			response.BadRequest(w, "proof image could not be decoded")
			return
		}
		h.writeTxError(w, err)
		return
	}
	response.OK(w, tx)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}

	applied, err := h.svc.Cancel(r.Context(), accountID, txID)
	if err != nil {
		h.writeTxError(w, err)
		return
	}
	if !applied {
		response.Conflict(w, "transaction is no longer cancellable")
		return
	}
	response.OK(w, map[string]interface{}{"cancelled": true})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	var kind settlement.Kind
	switch r.URL.Query().Get("type") {
	case "topup":
		kind = settlement.KindTopup
	case "payout":
		kind = settlement.KindPayout
	case "":
	default:
		response.BadRequest(w, "type must be topup or payout")
		return
	}

	txs, err := h.svc.List(r.Context(), accountID, kind)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, txs)
}

// Webhook receives Mercado Pago payment notifications. It always
// replies 200 once the payload parses: signalling an error would only
// make the provider retry an event we already handled.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	event, err := mercadopago.ParseWebhook(body)
	if err != nil {
		response.BadRequest(w, "invalid webhook payload")
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), event); err != nil {
		log.Error().Err(err).Int64("payment_id", event.PaymentID).Msg("webhook processing failed")
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"received": true})
}

// OpenTransactions lists in-flight transactions for the operator
// dashboard, both kinds unless filtered with ?type=.
func (h *Handler) OpenTransactions(w http.ResponseWriter, r *http.Request) {
	kinds := []settlement.Kind{settlement.KindTopup, settlement.KindPayout}
	switch r.URL.Query().Get("type") {
	case "topup":
		kinds = kinds[:1]
	case "payout":
		kinds = kinds[1:]
	case "":
	default:
		response.BadRequest(w, "type must be topup or payout")
		return
	}

	out := []settlement.Transaction{}
	for _, kind := range kinds {
		txs, err := h.svc.OpenTransactions(r.Context(), kind)
		if err != nil {
			response.InternalError(w)
			return
		}
		out = append(out, txs...)
	}
	response.OK(w, out)
}

func (h *Handler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.PendingReviews(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, txs)
}

func (h *Handler) Proof(w http.ResponseWriter, r *http.Request) {
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}

	url, err := h.svc.ProofURL(r.Context(), txID)
	if err != nil {
		if errors.Is(err, ErrNoProof) {
			response.NotFound(w, "no proof attached")
			return
		}
		h.writeTxError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"proof_url": url})
}

type decideRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid"`
	Approve       bool   `json:"approve"`
	Reason        string `json:"reason" validate:"omitempty,max=500"`
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	operatorID := middleware.GetAccountID(r.Context())

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationError(w, fields)
		return
	}
	txID, _ := uuid.Parse(req.TransactionID)

	applied, err := h.svc.Decide(r.Context(), operatorID, txID, req.Approve, req.Reason)
	if err != nil {
		h.writeTxError(w, err)
		return
	}
	if !applied {
		response.Conflict(w, "transaction already processed")
		return
	}
	response.OK(w, map[string]interface{}{"applied": true})
}

func (h *Handler) writeTxError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrNotFound):
		response.NotFound(w, "transaction not found")
	case errors.Is(err, settlement.ErrNotOwner):
		response.Forbidden(w, "transaction belongs to another account")
	case errors.Is(err, settlement.ErrWrongKind):
		response.BadRequest(w, "operation does not apply to this transaction")
	default:
		log.Error().Err(err).Msg("topup operation failed")
		response.InternalError(w)
	}
}

// Routes mounts the user-facing PIX endpoints.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/create", h.Create)
	r.Get("/status/{id}", h.Status)
	r.Post("/verify-with-proof", h.SubmitProof)
	return r
}

// TransactionRoutes mounts the shared transaction read/cancel paths.
func (h *Handler) TransactionRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

// AdminRoutes mounts the operator review queue.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(admin.RequirePermission(admin.PermissionReviewTopups))
	r.Get("/pending", h.PendingReviews)
	r.Get("/{id}/proof", h.Proof)
	r.Post("/decide", h.Decide)
	return r
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
