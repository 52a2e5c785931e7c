package settlement

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository is the Postgres ledger store. The conditional transition
// is a single guarded UPDATE, so linearizability per transaction comes
// from row-level locking -- no explicit transaction needed.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTransaction(ctx context.Context, tx *Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, account_id, kind, status, amount_in, amount_out, rate,
			external_ref, qr_code, qr_code_base64, expires_at, beneficiary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, tx.ID, tx.AccountID, tx.Kind, tx.Status, tx.AmountIn, tx.AmountOut, tx.Rate,
		tx.ExternalRef, tx.QRCode, tx.QRCodeBase64, tx.ExpiresAt, tx.Beneficiary)
	return err
}

func (r *Repository) ConditionalTransition(ctx context.Context, id uuid.UUID, expected, next Status, mut Mutation) (bool, error) {
	var via *string
	if mut.ProcessedVia != nil {
		v := string(*mut.ProcessedVia)
		via = &v
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET
			status = $3,
			evidence_key = COALESCE($4, evidence_key),
			external_ref = COALESCE($5, external_ref),
			processed_by = COALESCE($6, processed_by),
			processed_via = COALESCE($7, processed_via),
			terminal_reason = COALESCE($8, terminal_reason),
			completed_at = COALESCE($9, completed_at),
			updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, expected, next, mut.EvidenceKey, mut.ExternalRef, mut.ProcessedBy, via, mut.TerminalReason, mut.CompletedAt)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var tx Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *Repository) FindPendingByExternalRef(ctx context.Context, externalRef string) (*Transaction, error) {
	var tx Transaction
	err := r.db.GetContext(ctx, &tx, `
		SELECT * FROM transactions
		WHERE external_ref = $1 AND status IN ('pending', 'pending_review')
		ORDER BY created_at DESC
		LIMIT 1
	`, externalRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *Repository) FindPendingTopupByAmount(ctx context.Context, accountID uuid.UUID, amountIn int64) (*Transaction, error) {
	var tx Transaction
	err := r.db.GetContext(ctx, &tx, `
		SELECT * FROM transactions
		WHERE account_id = $1 AND kind = 'topup' AND amount_in = $2
		  AND status IN ('pending', 'pending_review')
		LIMIT 1
	`, accountID, amountIn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *Repository) LatestPending(ctx context.Context, kind Kind) (*Transaction, error) {
	var tx Transaction
	err := r.db.GetContext(ctx, &tx, `
		SELECT * FROM transactions
		WHERE kind = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, kind Kind) ([]Transaction, error) {
	txs := []Transaction{}
	if kind == "" {
		err := r.db.SelectContext(ctx, &txs, `
			SELECT * FROM transactions WHERE account_id = $1 ORDER BY created_at DESC
		`, accountID)
		return txs, err
	}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions WHERE account_id = $1 AND kind = $2 ORDER BY created_at DESC
	`, accountID, kind)
	return txs, err
}

func (r *Repository) ListByStatus(ctx context.Context, kind Kind, statuses ...Status) ([]Transaction, error) {
	states := make([]string, len(statuses))
	for i, s := range statuses {
		states[i] = string(s)
	}
	query, args, err := sqlx.In(`
		SELECT * FROM transactions WHERE kind = ? AND status IN (?) ORDER BY created_at ASC
	`, kind, states)
	if err != nil {
		return nil, err
	}
	txs := []Transaction{}
	err = r.db.SelectContext(ctx, &txs, r.db.Rebind(query), args...)
	return txs, err
}
