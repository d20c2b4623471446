package billing

import (
	"time"

	"github.com/keerthivasan-d/pay/app/models"
)

// CCAvenue does not expose a fetch API for past transactions; the gateway
// posts a decrypted form response once per transaction attempt. The charge is
// reconciled straight from that response, so the billing period collapses to
// the transaction date - the gateway reports no separate period end.

const ccavenueDateLayout = "02/01/2006 15:04:05"

// CCAvenueResponse is the decrypted key/value transaction response.
type CCAvenueResponse map[string]string

func (r CCAvenueResponse) get(key string) string { return r[key] }

// TrackingID is the processor id of the charge.
func (r CCAvenueResponse) TrackingID() string { return r.get("tracking_id") }

// CustomerRef is the local customer's processor id, carried through the
// merchant_param1 passthrough field.
func (r CCAvenueResponse) CustomerRef() string { return r.get("merchant_param1") }

// OrderID is the merchant order reference of the attempt.
func (r CCAvenueResponse) OrderID() string { return r.get("order_id") }

// ErrorDescription prefers the failure message and falls back to the generic
// status message.
func (r CCAvenueResponse) ErrorDescription() string {
	if msg := r.get("failure_message"); msg != "" {
		return msg
	}
	return r.get("status_message")
}

// TransactionDate parses trans_date, reported in IST without an offset.
// Missing or literal "null" dates fall back to now.
func (r CCAvenueResponse) TransactionDate() time.Time {
	raw := r.get("trans_date")
	if raw == "" || raw == "null" {
		return time.Now().UTC()
	}
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		ist = time.FixedZone("IST", 5*3600+1800)
	}
	t, err := time.ParseInLocation(ccavenueDateLayout, raw, ist)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

// AmountPaise converts the response's rupee amount to integer paise.
func (r CCAvenueResponse) AmountPaise() int64 {
	raw := r.get("amount")
	if raw == "" {
		return 0
	}
	var rupees int64
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			break
		}
		rupees = rupees*10 + int64(ch-'0')
	}
	return rupees * 100
}

// ClassifyCCAvenuePaymentMethod maps CCAvenue's payment_mode discriminator to
// normalized payment-method details. The issuing bank arrives in card_name
// for every mode. Unknown modes classify to the zero value.
func ClassifyCCAvenuePaymentMethod(r CCAvenueResponse) PaymentMethodDetails {
	bank := r.get("card_name")
	switch r.get("payment_mode") {
	case "IVRS":
		return PaymentMethodDetails{Type: models.PaymentMethodIVRS, Bank: bank}
	case "EMI":
		return PaymentMethodDetails{Type: models.PaymentMethodEMI, Bank: bank}
	case "Credit Card":
		return PaymentMethodDetails{Type: models.PaymentMethodCreditCard, Bank: bank}
	case "Debit Card":
		return PaymentMethodDetails{Type: models.PaymentMethodDebitCard, Bank: bank}
	case "Net Banking":
		return PaymentMethodDetails{Type: models.PaymentMethodNetbanking, Bank: bank}
	case "Cash Card":
		return PaymentMethodDetails{Type: models.PaymentMethodCashCard, Bank: bank}
	case "UPI":
		return PaymentMethodDetails{Type: models.PaymentMethodUPI, Bank: bank}
	default:
		return PaymentMethodDetails{}
	}
}
