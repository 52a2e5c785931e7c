package settlement

import (
	"context"

	"github.com/google/uuid"
)

// Store is the ledger persistence contract. ConditionalTransition is
// the compare-and-swap every exactly-once guarantee rests on: it must
// be linearizable per transaction id.
type Store interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error

	// ConditionalTransition atomically moves a transaction from
	// expected to next, applying the mutation's auxiliary fields in the
	// same statement. Returns applied=false, not an error, when the
	// stored status no longer equals expected.
	ConditionalTransition(ctx context.Context, id uuid.UUID, expected, next Status, mut Mutation) (bool, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// FindPendingByExternalRef locates a non-terminal topup by the
	// provider's external reference.
	FindPendingByExternalRef(ctx context.Context, externalRef string) (*Transaction, error)

	// FindPendingTopupByAmount backs the duplicate-payment guard:
	// returns any pending or pending_review topup with the identical
	// input amount for the account.
	FindPendingTopupByAmount(ctx context.Context, accountID uuid.UUID, amountIn int64) (*Transaction, error)

	// LatestPending returns the most recently created pending
	// transaction of a kind, the chat-image adapter's fallback when a
	// message carries no transaction id.
	LatestPending(ctx context.Context, kind Kind) (*Transaction, error)

	ListByAccount(ctx context.Context, accountID uuid.UUID, kind Kind) ([]Transaction, error)
	ListByStatus(ctx context.Context, kind Kind, statuses ...Status) ([]Transaction, error)
}

// Balances is the account half of the ledger. AdjustBalance must be
// linearizable per account and refuse any debit that would drive the
// balance negative.
type Balances interface {
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) error
}
