package rate

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Current returns the active exchange rate, seeding the default when
// the table is empty.
func (r *Repository) Current(ctx context.Context) (*ExchangeRate, error) {
	var rate ExchangeRate
	err := r.db.GetContext(ctx, &rate, `SELECT rate, updated_at, updated_by FROM exchange_rate LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		seeded := &ExchangeRate{Rate: DefaultRate}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO exchange_rate (rate, updated_by) VALUES ($1, $2)
		`, DefaultRate, uuid.Nil); err != nil {
			return nil, err
		}
		return seeded, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// CurrentRate returns just the decimal rate, the shape the settlement
// engine snapshots at payout creation.
func (r *Repository) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := r.Current(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rate.Rate, nil
}

// Replace overwrites the active rate.
func (r *Repository) Replace(ctx context.Context, newRate decimal.Decimal, updatedBy uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE exchange_rate SET rate = $1, updated_at = now(), updated_by = $2
	`, newRate, updatedBy)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO exchange_rate (rate, updated_by) VALUES ($1, $2)
		`, newRate, updatedBy)
	}
	return err
}
