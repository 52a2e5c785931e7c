package notification

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type categorizes in-app notifications
type Type string

const (
	TypeTopupCompleted  Type = "topup_completed"
	TypeTopupRejected   Type = "topup_rejected"
	TypePayoutCompleted Type = "payout_completed"
	TypePayoutRejected  Type = "payout_rejected"
	TypeCancelled       Type = "transaction_cancelled"
)

// Notification is an in-app notification record
type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	AccountID uuid.UUID  `db:"account_id" json:"account_id"`
	Type      Type       `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Data      Payload    `db:"data" json:"data,omitempty"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// Payload carries structured event data as JSONB
type Payload map[string]string

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *Payload) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported payload scan type %T", src)
	}
}
