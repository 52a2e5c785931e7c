package topup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/mercadopago"
	"github.com/risapp/ris-api/internal/pkg/storage"
)

// PaymentProvider is the slice of the Mercado Pago client the topup
// path uses.
type PaymentProvider interface {
	CreatePixPayment(ctx context.Context, req mercadopago.CreatePixRequest) (*mercadopago.PixPayment, error)
	GetPayment(ctx context.Context, paymentID int64) (*mercadopago.PaymentStatus, error)
}

// Service drives the topup half of settlement: PIX creation, status
// polling, proof submission, the provider webhook, and operator review.
type Service struct {
	engine        *settlement.Engine
	store         settlement.Store
	provider      PaymentProvider
	storage       storage.Storage
	processor     *imaging.Processor
	pixExpiration time.Duration
}

func NewService(engine *settlement.Engine, store settlement.Store, provider PaymentProvider, st storage.Storage, processor *imaging.Processor, pixExpiration time.Duration) *Service {
	if pixExpiration == 0 {
		pixExpiration = 30 * time.Minute
	}
	return &Service{
		engine:        engine,
		store:         store,
		provider:      provider,
		storage:       st,
		processor:     processor,
		pixExpiration: pixExpiration,
	}
}

// IntentCreator adapts the provider to the engine's intent contract:
// the transaction id travels as the PIX external reference, and the
// provider's payment id becomes the ledger's external_ref.
type IntentCreator struct {
	Provider      PaymentProvider
	PixExpiration time.Duration
}

func (c IntentCreator) CreateIntent(ctx context.Context, req settlement.TopupRequest, txID uuid.UUID) (*settlement.PaymentIntent, error) {
	expiration := c.PixExpiration
	if expiration == 0 {
		expiration = 30 * time.Minute
	}
	expiresAt := time.Now().Add(expiration)

	payment, err := c.Provider.CreatePixPayment(ctx, mercadopago.CreatePixRequest{
		AmountCents: req.AmountIn,
		Description: fmt.Sprintf("Recarga RIS %d.%02d BRL", req.AmountIn/100, req.AmountIn%100),
		Payer: mercadopago.Payer{
			Email:     req.PayerEmail,
			FirstName: req.PayerFirstName,
			LastName:  req.PayerLastName,
			CPF:       req.PayerCPF,
		},
		ExternalReference: txID.String(),
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return nil, err
	}

	return &settlement.PaymentIntent{
		ExternalRef:  strconv.FormatInt(payment.PaymentID, 10),
		QRCode:       payment.QRCode,
		QRCodeBase64: payment.QRCodeBase64,
		ExpiresAt:    expiresAt,
	}, nil
}

// Create opens a topup: the engine validates bounds and the duplicate
// guard and requests the PIX artifact through the intent adapter.
func (s *Service) Create(ctx context.Context, req settlement.TopupRequest) (*settlement.Transaction, error) {
	return s.engine.CreateTopup(ctx, req)
}

// Status returns the transaction, re-checking the provider for still
// pending topups so polling clients settle without waiting for the
// webhook.
func (s *Service) Status(ctx context.Context, accountID, txID uuid.UUID) (*settlement.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.AccountID != accountID {
		return nil, settlement.ErrNotOwner
	}
	if tx.Kind != settlement.KindTopup {
		return nil, settlement.ErrWrongKind
	}
	if tx.Status != settlement.StatusPending || tx.ExternalRef == "" {
		return tx, nil
	}

	paymentID, err := strconv.ParseInt(tx.ExternalRef, 10, 64)
	if err != nil {
		return tx, nil
	}
	status, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", txID.String()).Msg("provider status check failed")
		return tx, nil
	}
	if status.Approved() {
		if _, err := s.engine.ConfirmTopup(ctx, txID, settlement.TriggerWebhook, ""); err != nil {
			return nil, err
		}
		return s.store.GetTransaction(ctx, txID)
	}
	return tx, nil
}

// SubmitProof stores a normalized proof image and either settles the
// topup (provider already approved) or parks it for operator review.
func (s *Service) SubmitProof(ctx context.Context, accountID, txID uuid.UUID, image io.Reader) (*settlement.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.AccountID != accountID {
		return nil, settlement.ErrNotOwner
	}
	if tx.Kind != settlement.KindTopup {
		return nil, settlement.ErrWrongKind
	}

	processed, err := s.processor.Process(image)
	if err != nil {
		return nil, ErrInvalidProofImage
	}
	key := imaging.ProofPath(txID.String(), processed.ContentType)
	if err := s.storage.Put(ctx, key, bytes.NewReader(processed.Data), processed.ContentType); err != nil {
		return nil, err
	}

	if s.providerApproved(ctx, tx) {
		if _, err := s.engine.ConfirmTopup(ctx, txID, settlement.TriggerProof, key); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.engine.ReviewTopup(ctx, txID, key); err != nil {
			return nil, err
		}
	}
	return s.store.GetTransaction(ctx, txID)
}

func (s *Service) providerApproved(ctx context.Context, tx *settlement.Transaction) bool {
	if tx.ExternalRef == "" {
		return false
	}
	paymentID, err := strconv.ParseInt(tx.ExternalRef, 10, 64)
	if err != nil {
		return false
	}
	status, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("provider check during proof submission failed")
		return false
	}
	return status.Approved()
}

// HandleWebhook processes a provider payment event. Every outcome is
// success from the provider's point of view: unknown payments,
// unapproved statuses, and CAS misses all acknowledge cleanly so the
// provider stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, event *mercadopago.WebhookEvent) error {
	if !event.IsPayment() {
		return nil
	}

	status, err := s.provider.GetPayment(ctx, event.PaymentID)
	if err != nil {
		return fmt.Errorf("payment lookup failed: %w", err)
	}
	if !status.Approved() {
		return nil
	}

	tx, err := s.locateByPayment(ctx, event.PaymentID, status.ExternalReference)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			log.Warn().Int64("payment_id", event.PaymentID).Msg("webhook for unknown payment")
			return nil
		}
		return err
	}

	applied, err := s.engine.ConfirmTopup(ctx, tx.ID, settlement.TriggerWebhook, "")
	if err != nil {
		return err
	}
	if !applied {
		log.Debug().Str("transaction_id", tx.ID.String()).Msg("webhook replay ignored")
	}
	return nil
}

// locateByPayment resolves the ledger record for a provider payment:
// by stored payment id first, then by the external reference the
// payment carries (the transaction id we set at creation).
func (s *Service) locateByPayment(ctx context.Context, paymentID int64, externalReference string) (*settlement.Transaction, error) {
	tx, err := s.store.FindPendingByExternalRef(ctx, strconv.FormatInt(paymentID, 10))
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, settlement.ErrNotFound) {
		return nil, err
	}

	txID, parseErr := uuid.Parse(externalReference)
	if parseErr != nil {
		return nil, settlement.ErrNotFound
	}
	return s.store.GetTransaction(ctx, txID)
}

// PendingReviews lists topups waiting on an operator decision.
func (s *Service) PendingReviews(ctx context.Context) ([]settlement.Transaction, error) {
	return s.store.ListByStatus(ctx, settlement.KindTopup, settlement.StatusPendingReview)
}

// ProofURL resolves the stored evidence for a reviewed topup.
func (s *Service) ProofURL(ctx context.Context, txID uuid.UUID) (string, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return "", err
	}
	if tx.EvidenceKey == "" {
		return "", ErrNoProof
	}
	return s.storage.GetURL(tx.EvidenceKey), nil
}

// Decide settles a reviewed topup one way or the other.
func (s *Service) Decide(ctx context.Context, operatorID, txID uuid.UUID, approve bool, reason string) (bool, error) {
	if approve {
		return s.engine.ApproveReview(ctx, txID, operatorID)
	}
	if reason == "" {
		reason = "rejected by operator"
	}
	return s.engine.RejectReview(ctx, txID, operatorID, reason)
}

// Cancel abandons the caller's own pending topup.
func (s *Service) Cancel(ctx context.Context, accountID, txID uuid.UUID) (bool, error) {
	return s.engine.Cancel(ctx, txID, accountID)
}

// List returns the account's transactions, optionally filtered by kind.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, kind settlement.Kind) ([]settlement.Transaction, error) {
	return s.store.ListByAccount(ctx, accountID, kind)
}

// OpenTransactions lists everything still in flight for a kind, the
// operator's overview across both queues.
func (s *Service) OpenTransactions(ctx context.Context, kind settlement.Kind) ([]settlement.Transaction, error) {
	return s.store.ListByStatus(ctx, kind, settlement.StatusPending, settlement.StatusPendingReview)
}
