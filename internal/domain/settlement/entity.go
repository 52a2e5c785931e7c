package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the two transaction directions: money entering
// the intermediary balance (topup) and money leaving it (payout).
type Kind string

const (
	KindTopup  Kind = "topup"
	KindPayout Kind = "payout"
)

// Status is the settlement state machine position. pending_review is
// reachable only for topups, when a user attaches proof the provider
// has not yet confirmed.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPendingReview Status = "pending_review"
	StatusCompleted     Status = "completed"
	StatusRejected      Status = "rejected"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Trigger identifies which inbound path completed a transaction.
type Trigger string

const (
	TriggerWebhook  Trigger = "webhook"
	TriggerProof    Trigger = "proof"
	TriggerOperator Trigger = "operator"
	TriggerChat     Trigger = "chat"
	TriggerUser     Trigger = "user"
)

// Transaction is a ledger record. AmountIn is BRL cents. AmountOut is
// the settled side in minor units: equal to AmountIn for topups, VES
// at the creation-time rate snapshot for payouts. Records are never
// deleted; terminal records are immutable.
type Transaction struct {
	ID        uuid.UUID `db:"id" json:"id"`
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	Kind      Kind      `db:"kind" json:"kind"`
	Status    Status    `db:"status" json:"status"`

	AmountIn  int64           `db:"amount_in" json:"amount_in"`
	AmountOut int64           `db:"amount_out" json:"amount_out"`
	Rate      decimal.Decimal `db:"rate" json:"rate"`

	// Topup payment artifact from the provider.
	ExternalRef  string     `db:"external_ref" json:"external_ref,omitempty"`
	QRCode       string     `db:"qr_code" json:"qr_code,omitempty"`
	QRCodeBase64 string     `db:"qr_code_base64" json:"qr_code_base64,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`

	// Payout destination snapshot, stored as JSON.
	Beneficiary *BeneficiarySnapshot `db:"beneficiary" json:"beneficiary,omitempty"`

	EvidenceKey    string     `db:"evidence_key" json:"evidence_key,omitempty"`
	ProcessedBy    *uuid.UUID `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedVia   Trigger    `db:"processed_via" json:"processed_via,omitempty"`
	TerminalReason string     `db:"terminal_reason" json:"terminal_reason,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Mutation carries the auxiliary fields a conditional transition sets
// alongside the status change. Nil pointers leave fields untouched.
type Mutation struct {
	EvidenceKey    *string
	ExternalRef    *string
	ProcessedBy    *uuid.UUID
	ProcessedVia   *Trigger
	TerminalReason *string
	CompletedAt    *time.Time
}
