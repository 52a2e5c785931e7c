package account

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

func (r *Repository) Create(ctx context.Context, acc *Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, role, balance)
		VALUES ($1, $2, $3, $4, 0)
	`, acc.ID, acc.Email, acc.Name, acc.Role)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var acc Account
	err := r.db.GetContext(ctx, &acc, `SELECT * FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var acc Account
	err := r.db.GetContext(ctx, &acc, `SELECT * FROM accounts WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *Repository) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `SELECT balance FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

// AdjustBalance applies a signed delta to an account balance in a
// single guarded statement. A debit that would drive the balance
// negative matches no row and returns ErrInsufficientBalance.
func (r *Repository) AdjustBalance(ctx context.Context, id uuid.UUID, delta int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1 AND balance + $2 >= 0
	`, id, delta)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (r *Repository) SetFCMToken(ctx context.Context, id uuid.UUID, token string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET fcm_token = $2, updated_at = now() WHERE id = $1
	`, id, token)
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
