package billing

import (
	"testing"
	"time"

	"github.com/keerthivasan-d/pay/app/models"
)

func TestCCAvenueTransactionDate(t *testing.T) {
	resp := CCAvenueResponse{"trans_date": "06/02/2024 14:30:00"}
	got := resp.TransactionDate()
	// 14:30 IST is 09:00 UTC.
	want := time.Date(2024, 2, 6, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("TransactionDate() = %v, want %v", got, want)
	}
}

func TestCCAvenueTransactionDateFallsBackToNow(t *testing.T) {
	for _, raw := range []string{"", "null", "not-a-date"} {
		resp := CCAvenueResponse{"trans_date": raw}
		got := resp.TransactionDate()
		if d := time.Since(got); d < 0 || d > 5*time.Second {
			t.Fatalf("trans_date %q: got %v, want roughly now", raw, got)
		}
	}
}

func TestCCAvenueAmountPaise(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"499.00", 49900},
		{"499.50", 49900},
		{"1000", 100000},
		{"0.00", 0},
		{"", 0},
	}
	for _, tt := range tests {
		resp := CCAvenueResponse{"amount": tt.raw}
		if got := resp.AmountPaise(); got != tt.want {
			t.Errorf("AmountPaise(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCCAvenueErrorDescription(t *testing.T) {
	resp := CCAvenueResponse{"failure_message": "card declined", "status_message": "failure"}
	if got := resp.ErrorDescription(); got != "card declined" {
		t.Fatalf("ErrorDescription() = %q, want failure message", got)
	}
	resp = CCAvenueResponse{"status_message": "Transaction aborted"}
	if got := resp.ErrorDescription(); got != "Transaction aborted" {
		t.Fatalf("ErrorDescription() = %q, want status message fallback", got)
	}
}

func TestClassifyCCAvenuePaymentMethod(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"IVRS", models.PaymentMethodIVRS},
		{"EMI", models.PaymentMethodEMI},
		{"Credit Card", models.PaymentMethodCreditCard},
		{"Debit Card", models.PaymentMethodDebitCard},
		{"Net Banking", models.PaymentMethodNetbanking},
		{"Cash Card", models.PaymentMethodCashCard},
		{"UPI", models.PaymentMethodUPI},
	}
	for _, tt := range tests {
		resp := CCAvenueResponse{"payment_mode": tt.mode, "card_name": "ICICI Bank"}
		got := ClassifyCCAvenuePaymentMethod(resp)
		if got.Type != tt.want {
			t.Errorf("payment_mode %q: type = %q, want %q", tt.mode, got.Type, tt.want)
		}
		if got.Bank != "ICICI Bank" {
			t.Errorf("payment_mode %q: bank = %q, want ICICI Bank", tt.mode, got.Bank)
		}
	}

	if got := ClassifyCCAvenuePaymentMethod(CCAvenueResponse{"payment_mode": "Unknown"}); !got.Empty() {
		t.Fatalf("unknown mode should classify empty, got %+v", got)
	}
}
