package mercadopago

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// WebhookEvent represents a Mercado Pago webhook notification.
// Only type=payment events carry a payment id we can act on.
type WebhookEvent struct {
	Type      string
	Action    string
	PaymentID int64
}

// IsPayment reports whether this event refers to a payment resource
func (e *WebhookEvent) IsPayment() bool {
	return e.Type == "payment" && e.PaymentID != 0
}

// ParseWebhook parses the webhook JSON body. The data.id field arrives
// as either a JSON number or a string depending on the notification
// channel, so both are accepted.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Data   struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	event := &WebhookEvent{Type: payload.Type, Action: payload.Action}

	if len(payload.Data.ID) > 0 {
		raw := string(payload.Data.ID)
		if len(raw) >= 2 && raw[0] == '"' {
			var s string
			if err := json.Unmarshal(payload.Data.ID, &s); err != nil {
				return nil, fmt.Errorf("invalid webhook payment id: %w", err)
			}
			raw = s
		}
		if raw != "" && raw != "null" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid webhook payment id %q", raw)
			}
			event.PaymentID = id
		}
	}

	return event, nil
}
