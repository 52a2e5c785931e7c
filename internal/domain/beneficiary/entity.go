package beneficiary

import (
	"time"

	"github.com/google/uuid"
)

// Beneficiary is a saved Venezuelan bank recipient for withdrawals.
type Beneficiary struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AccountID     uuid.UUID `db:"account_id" json:"-"`
	FullName      string    `db:"full_name" json:"full_name"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	BankCode      string    `db:"bank_code" json:"bank_code"`
	BankName      string    `db:"bank_name" json:"bank_name"`
	AccountNumber string    `db:"account_number" json:"account_number"`
	Phone         string    `db:"phone" json:"phone"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
