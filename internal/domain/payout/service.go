package payout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/storage"
	"github.com/risapp/ris-api/internal/pkg/twilio"
)

// WhatsAppChannel is the slice of the Twilio client the payout path
// uses: alerting operators and replying to the chat bot.
type WhatsAppChannel interface {
	Enabled() bool
	SendOperatorMessage(ctx context.Context, body string) error
	SendMessage(ctx context.Context, to, body string) error
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// Service drives the payout half of settlement: creation with eager
// debit, operator processing, and the WhatsApp chat-image trigger.
type Service struct {
	engine    *settlement.Engine
	store     settlement.Store
	whatsapp  WhatsAppChannel
	storage   storage.Storage
	processor *imaging.Processor
}

func NewService(engine *settlement.Engine, store settlement.Store, whatsapp WhatsAppChannel, st storage.Storage, processor *imaging.Processor) *Service {
	return &Service{
		engine:    engine,
		store:     store,
		whatsapp:  whatsapp,
		storage:   st,
		processor: processor,
	}
}

// Create reserves the funds and opens the payout, then alerts the
// operator group over WhatsApp. The alert is fire-and-forget: a chat
// outage must not fail a payout that already reserved funds.
func (s *Service) Create(ctx context.Context, req settlement.PayoutRequest) (*settlement.Transaction, error) {
	tx, err := s.engine.CreatePayout(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.whatsapp != nil && s.whatsapp.Enabled() {
		go func(tx settlement.Transaction) {
			msg := fmt.Sprintf(
				"Nova retirada pendente\nID: %s\nMonto: %d.%02d VES\nBeneficiario: %s\nBanco: %s (%s)\nCuenta: %s",
				tx.ID,
				tx.AmountOut/100, tx.AmountOut%100,
				tx.Beneficiary.FullName,
				tx.Beneficiary.BankName, tx.Beneficiary.BankCode,
				tx.Beneficiary.AccountNumber,
			)
			if err := s.whatsapp.SendOperatorMessage(context.Background(), msg); err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("operator alert failed")
			}
		}(*tx)
	}

	return tx, nil
}

// Pending lists payouts waiting on an operator.
func (s *Service) Pending(ctx context.Context) ([]settlement.Transaction, error) {
	return s.store.ListByStatus(ctx, settlement.KindPayout, settlement.StatusPending)
}

// Complete settles a payout from the admin panel, storing the proof
// image when one is attached.
func (s *Service) Complete(ctx context.Context, operatorID, txID uuid.UUID, proof io.Reader) (bool, error) {
	var key string
	if proof != nil {
		processed, err := s.processor.Process(proof)
		if err != nil {
			return false, ErrInvalidProofImage
		}
		key = imaging.ProofPath(txID.String(), processed.ContentType)
		if err := s.storage.Put(ctx, key, bytes.NewReader(processed.Data), processed.ContentType); err != nil {
			return false, err
		}
	}
	return s.engine.CompletePayout(ctx, txID, &operatorID, settlement.TriggerOperator, key)
}

// Reject refuses a payout and restores the reserved funds.
func (s *Service) Reject(ctx context.Context, operatorID, txID uuid.UUID, reason string) (bool, error) {
	if reason == "" {
		reason = "rejected by operator"
	}
	return s.engine.RejectPayout(ctx, txID, operatorID, reason)
}

// ChatResult is what the webhook reports back to the sender.
type ChatResult struct {
	TransactionID uuid.UUID
	Applied       bool
	Reply         string
}

// HandleChatImage processes an operator's WhatsApp message carrying a
// transfer receipt. The transaction is located by the ID in the
// message text, falling back to the most recent pending payout. A CAS
// miss means someone else already settled it; the bot reports that as
// done, not as a failure.
func (s *Service) HandleChatImage(ctx context.Context, msg *twilio.InboundMessage) (*ChatResult, error) {
	if !msg.HasMedia() {
		return &ChatResult{Reply: "Envie la imagen del comprobante junto con el ID de la transaccion."}, nil
	}

	tx, err := s.locateTarget(ctx, msg.Body)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return &ChatResult{Reply: "No hay retiradas pendientes para ese comprobante."}, nil
		}
		return nil, err
	}

	data, _, err := s.whatsapp.DownloadMedia(ctx, msg.MediaURLs[0])
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}

	processed, err := s.processor.Process(bytes.NewReader(data))
	if err != nil {
		return &ChatResult{TransactionID: tx.ID, Reply: "La imagen no se pudo procesar, intente de nuevo."}, nil
	}
	key := imaging.ProofPath(tx.ID.String(), processed.ContentType)
	if err := s.storage.Put(ctx, key, bytes.NewReader(processed.Data), processed.ContentType); err != nil {
		return nil, err
	}

	applied, err := s.engine.CompletePayout(ctx, tx.ID, nil, settlement.TriggerChat, key)
	if err != nil {
		return nil, err
	}

	result := &ChatResult{TransactionID: tx.ID, Applied: applied}
	if applied {
		result.Reply = fmt.Sprintf("Retirada %s completada.", shortID(tx.ID))
	} else {
		result.Reply = fmt.Sprintf("Retirada %s ya fue procesada.", shortID(tx.ID))
	}
	return result, nil
}

func (s *Service) locateTarget(ctx context.Context, body string) (*settlement.Transaction, error) {
	if idText, ok := twilio.ExtractTransactionID(body); ok {
		txID, err := uuid.Parse(idText)
		if err == nil {
			return s.store.GetTransaction(ctx, txID)
		}
	}
	return s.store.LatestPending(ctx, settlement.KindPayout)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
