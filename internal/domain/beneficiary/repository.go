package beneficiary

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, b *Beneficiary) error {
	return r.db.GetContext(ctx, b, `
		INSERT INTO beneficiaries (id, account_id, full_name, document_id, bank_code, bank_name, account_number, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, b.ID, b.AccountID, b.FullName, b.DocumentID, b.BankCode, b.BankName, b.AccountNumber, b.Phone)
}

// GetByID scopes lookups to the owning account so one user cannot
// read another's beneficiaries.
func (r *Repository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Beneficiary, error) {
	var b Beneficiary
	err := r.db.GetContext(ctx, &b, `
		SELECT * FROM beneficiaries WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Beneficiary, error) {
	beneficiaries := []Beneficiary{}
	err := r.db.SelectContext(ctx, &beneficiaries, `
		SELECT * FROM beneficiaries WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	return beneficiaries, err
}

func (r *Repository) Update(ctx context.Context, b *Beneficiary) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE beneficiaries
		SET full_name = $3, document_id = $4, bank_code = $5, bank_name = $6, account_number = $7, phone = $8, updated_at = now()
		WHERE id = $1 AND account_id = $2
	`, b.ID, b.AccountID, b.FullName, b.DocumentID, b.BankCode, b.BankName, b.AccountNumber, b.Phone)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM beneficiaries WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
