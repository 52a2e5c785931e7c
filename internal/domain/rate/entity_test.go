package rate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestConvertCents(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		{"whole rate", 10000, "78", 780000},
		{"fractional rate", 10000, "78.5", 785000},
		{"truncates toward zero", 3, "0.5", 1},
		{"zero amount", 0, "78", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := decimal.NewFromString(tt.rate)
			if err != nil {
				t.Fatalf("parse rate: %v", err)
			}
			if got := ConvertCents(tt.amount, r); got != tt.want {
				t.Errorf("ConvertCents(%d, %s) = %d, want %d", tt.amount, tt.rate, got, tt.want)
			}
		})
	}
}
