package rate

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExchangeRate is the current BRL to VES conversion rate. A single
// active rate exists at any time; updates replace it rather than
// keeping history on the hot path.
type ExchangeRate struct {
	Rate      decimal.Decimal `db:"rate" json:"rate"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
	UpdatedBy uuid.UUID       `db:"updated_by" json:"updated_by"`
}

// DefaultRate seeds the rate table on first boot.
var DefaultRate = decimal.NewFromInt(78)

// ConvertCents converts an amount of BRL cents into VES cents at the
// given rate, truncating toward zero.
func ConvertCents(amountCents int64, r decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).Mul(r).IntPart()
}
