package settlement

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// BeneficiarySnapshot is the payout destination captured at creation
// time. It is a copy, not a reference: later edits to a saved
// beneficiary never change an in-flight payout.
type BeneficiarySnapshot struct {
	FullName      string `json:"full_name"`
	DocumentID    string `json:"document_id"`
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	Phone         string `json:"phone,omitempty"`
}

func (b *BeneficiarySnapshot) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

func (b *BeneficiarySnapshot) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("unsupported beneficiary scan type %T", src)
	}
}
