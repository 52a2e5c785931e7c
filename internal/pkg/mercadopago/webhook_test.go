package mercadopago

import "testing"

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantType  string
		wantID    int64
		isPayment bool
		wantErr   bool
	}{
		{
			name:      "payment with numeric id",
			body:      `{"type": "payment", "action": "payment.updated", "data": {"id": 123456}}`,
			wantType:  "payment",
			wantID:    123456,
			isPayment: true,
		},
		{
			name:      "payment with string id",
			body:      `{"type": "payment", "action": "payment.created", "data": {"id": "987654"}}`,
			wantType:  "payment",
			wantID:    987654,
			isPayment: true,
		},
		{
			name:      "non payment event",
			body:      `{"type": "plan", "data": {"id": 5}}`,
			wantType:  "plan",
			wantID:    5,
			isPayment: false,
		},
		{
			name:      "missing data id",
			body:      `{"type": "payment", "action": "payment.updated", "data": {}}`,
			wantType:  "payment",
			isPayment: false,
		},
		{
			name:    "garbage body",
			body:    `not json`,
			wantErr: true,
		},
		{
			name:    "non numeric string id",
			body:    `{"type": "payment", "data": {"id": "abc"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseWebhook([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWebhook failed: %v", err)
			}
			if event.Type != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, event.Type)
			}
			if event.PaymentID != tt.wantID {
				t.Errorf("expected payment id %d, got %d", tt.wantID, event.PaymentID)
			}
			if event.IsPayment() != tt.isPayment {
				t.Errorf("expected IsPayment=%v", tt.isPayment)
			}
		})
	}
}
