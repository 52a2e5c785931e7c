package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RateSource provides the current exchange rate for payout snapshots.
type RateSource interface {
	CurrentRate(ctx context.Context) (decimal.Decimal, error)
}

// IntentCreator requests the payment artifact (QR code) from the
// provider when a topup is created.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req TopupRequest, txID uuid.UUID) (*PaymentIntent, error)
}

// Notifier receives terminal-state events. Delivery is best effort;
// implementations must not block the settlement path.
type Notifier interface {
	NotifyTransition(tx *Transaction)
}

// TopupRequest carries everything a topup creation needs, including
// the payer identity the provider requires for PIX.
type TopupRequest struct {
	AccountID      uuid.UUID
	AmountIn       int64
	PayerEmail     string
	PayerFirstName string
	PayerLastName  string
	PayerCPF       string
}

// PaymentIntent is the provider-side artifact for a created topup.
type PaymentIntent struct {
	ExternalRef  string
	QRCode       string
	QRCodeBase64 string
	ExpiresAt    time.Time
}

// PayoutRequest carries a withdrawal creation.
type PayoutRequest struct {
	AccountID   uuid.UUID
	AmountIn    int64
	Beneficiary BeneficiarySnapshot
}

// Config bounds user-initiated topups.
type Config struct {
	MinTopupAmount int64
	MaxTopupAmount int64
}

// Engine is the settlement state machine. Every status change goes
// through the store's conditional transition, and every balance
// mutation happens strictly after a transition reports applied=true.
// It is safe for concurrent use from independent request contexts.
type Engine struct {
	cfg      Config
	store    Store
	balances Balances
	rates    RateSource
	intents  IntentCreator
	notifier Notifier
}

func NewEngine(cfg Config, store Store, balances Balances, rates RateSource, intents IntentCreator, notifier Notifier) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		balances: balances,
		rates:    rates,
		intents:  intents,
		notifier: notifier,
	}
}

// CreateTopup validates bounds and the duplicate-payment guard,
// requests a payment artifact from the provider, and inserts the
// pending transaction. Topups credit the balance one-to-one, so the
// rate snapshot is 1 and amount_out equals amount_in.
func (e *Engine) CreateTopup(ctx context.Context, req TopupRequest) (*Transaction, error) {
	if req.AmountIn < e.cfg.MinTopupAmount || req.AmountIn > e.cfg.MaxTopupAmount {
		return nil, ErrInvalidAmount
	}

	// The provider cannot disambiguate two same-amount payments for
	// the same account, so a second identical pending topup is refused.
	existing, err := e.store.FindPendingTopupByAmount(ctx, req.AccountID, req.AmountIn)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicatePending
	}

	tx := &Transaction{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Kind:      KindTopup,
		Status:    StatusPending,
		AmountIn:  req.AmountIn,
		AmountOut: req.AmountIn,
		Rate:      decimal.NewFromInt(1),
	}

	intent, err := e.intents.CreateIntent(ctx, req, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.ExternalRef = intent.ExternalRef
	tx.QRCode = intent.QRCode
	tx.QRCodeBase64 = intent.QRCodeBase64
	if !intent.ExpiresAt.IsZero() {
		expires := intent.ExpiresAt
		tx.ExpiresAt = &expires
	}

	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// CreatePayout snapshots the exchange rate, debits the balance eagerly
// so the funds are reserved before any confirmation, and inserts the
// pending transaction. The debit is reversed if the insert fails.
func (e *Engine) CreatePayout(ctx context.Context, req PayoutRequest) (*Transaction, error) {
	if req.AmountIn <= 0 {
		return nil, ErrInvalidAmount
	}

	currentRate, err := e.rates.CurrentRate(ctx)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		ID:          uuid.New(),
		AccountID:   req.AccountID,
		Kind:        KindPayout,
		Status:      StatusPending,
		AmountIn:    req.AmountIn,
		AmountOut:   decimal.NewFromInt(req.AmountIn).Mul(currentRate).IntPart(),
		Rate:        currentRate,
		Beneficiary: &req.Beneficiary,
	}

	if err := e.balances.AdjustBalance(ctx, req.AccountID, -req.AmountIn); err != nil {
		return nil, err
	}

	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		if creditErr := e.balances.AdjustBalance(ctx, req.AccountID, req.AmountIn); creditErr != nil {
			log.Error().Err(creditErr).
				Str("account_id", req.AccountID.String()).
				Int64("amount", req.AmountIn).
				Msg("failed to reverse payout debit after insert failure")
		}
		return nil, err
	}
	return tx, nil
}

// ConfirmTopup settles a provider-approved topup: CAS pending →
// completed, then credit. A false return means another trigger already
// moved the transaction; callers treat that as success.
func (e *Engine) ConfirmTopup(ctx context.Context, txID uuid.UUID, via Trigger, evidenceKey string) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Kind != KindTopup {
		return false, ErrWrongKind
	}

	applied, err := e.store.ConditionalTransition(ctx, txID, StatusPending, StatusCompleted, completionMutation(via, nil, evidenceKey))
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := e.balances.AdjustBalance(ctx, tx.AccountID, tx.AmountOut); err != nil {
		return true, err
	}
	e.notifyTerminal(ctx, txID)
	return true, nil
}

// ReviewTopup attaches unverified proof: CAS pending → pending_review.
// No balance effect until an operator decides.
func (e *Engine) ReviewTopup(ctx context.Context, txID uuid.UUID, evidenceKey string) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Kind != KindTopup {
		return false, ErrWrongKind
	}

	via := TriggerProof
	return e.store.ConditionalTransition(ctx, txID, StatusPending, StatusPendingReview, Mutation{
		EvidenceKey:  &evidenceKey,
		ProcessedVia: &via,
	})
}

// ApproveReview settles a reviewed topup: CAS pending_review →
// completed, then credit.
func (e *Engine) ApproveReview(ctx context.Context, txID, operatorID uuid.UUID) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Kind != KindTopup {
		return false, ErrWrongKind
	}

	applied, err := e.store.ConditionalTransition(ctx, txID, StatusPendingReview, StatusCompleted, completionMutation(TriggerOperator, &operatorID, ""))
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := e.balances.AdjustBalance(ctx, tx.AccountID, tx.AmountOut); err != nil {
		return true, err
	}
	e.notifyTerminal(ctx, txID)
	return true, nil
}

// RejectReview refuses a reviewed topup. The balance was never
// credited, so there is no balance effect.
func (e *Engine) RejectReview(ctx context.Context, txID, operatorID uuid.UUID, reason string) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Kind != KindTopup {
		return false, ErrWrongKind
	}

	via := TriggerOperator
	applied, err := e.store.ConditionalTransition(ctx, txID, StatusPendingReview, StatusRejected, Mutation{
		ProcessedBy:    &operatorID,
		ProcessedVia:   &via,
		TerminalReason: &reason,
	})
	if err != nil || !applied {
		return applied, err
	}
	e.notifyTerminal(ctx, txID)
	return true, nil
}

// CompletePayout marks a payout as sent: CAS pending → completed with
// evidence. The debit already happened at creation, so there is no
// balance effect.
func (e *Engine) CompletePayout(ctx context.Context, txID uuid.UUID, operatorID *uuid.UUID, via Trigger, evidenceKey string) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Kind != KindPayout {
		return false, ErrWrongKind
	}

	applied, err := e.store.ConditionalTransition(ctx, txID, StatusPending, StatusCompleted, completionMutation(via, operatorID, evidenceKey))
	if err != nil || !applied {
		return applied, err
	}
	e.notifyTerminal(ctx, txID)
	return true, nil
}

// RejectPayout refuses a pending payout and reverses the eager debit:
// CAS pending → rejected, then credit back amount_in.
func (e *Engine) RejectPayout(ctx context.Context, txID, operatorID uuid.UUID, reason string) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Kind != KindPayout {
		return false, ErrWrongKind
	}

	via := TriggerOperator
	applied, err := e.store.ConditionalTransition(ctx, txID, StatusPending, StatusRejected, Mutation{
		ProcessedBy:    &operatorID,
		ProcessedVia:   &via,
		TerminalReason: &reason,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := e.balances.AdjustBalance(ctx, tx.AccountID, tx.AmountIn); err != nil {
		return true, err
	}
	e.notifyTerminal(ctx, txID)
	return true, nil
}

// Cancel lets the owning account abandon a pending or pending_review
// topup. No balance effect.
func (e *Engine) Cancel(ctx context.Context, txID, accountID uuid.UUID) (bool, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.AccountID != accountID {
		return false, ErrNotOwner
	}
	if tx.Kind != KindTopup {
		return false, ErrWrongKind
	}

	via := TriggerUser
	reason := "cancelled by user"
	mut := Mutation{ProcessedVia: &via, TerminalReason: &reason}

	applied, err := e.store.ConditionalTransition(ctx, txID, StatusPending, StatusCancelled, mut)
	if err != nil {
		return false, err
	}
	if !applied {
		applied, err = e.store.ConditionalTransition(ctx, txID, StatusPendingReview, StatusCancelled, mut)
		if err != nil {
			return false, err
		}
	}
	if applied {
		e.notifyTerminal(ctx, txID)
	}
	return applied, nil
}

func completionMutation(via Trigger, operatorID *uuid.UUID, evidenceKey string) Mutation {
	now := time.Now()
	mut := Mutation{
		ProcessedVia: &via,
		ProcessedBy:  operatorID,
		CompletedAt:  &now,
	}
	if evidenceKey != "" {
		mut.EvidenceKey = &evidenceKey
	}
	return mut
}

// notifyTerminal re-reads the settled record so the notifier sees the
// post-transition state.
func (e *Engine) notifyTerminal(ctx context.Context, txID uuid.UUID) {
	if e.notifier == nil {
		return
	}
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", txID.String()).Msg("failed to load transaction for notification")
		return
	}
	e.notifier.NotifyTransition(tx)
}
