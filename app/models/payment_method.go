package models

import "time"

// Payment method types produced by the per-gateway classifiers. Unknown
// gateway discriminators classify to an empty type, never an error.
const (
	PaymentMethodCard       = "card"
	PaymentMethodWallet     = "wallet"
	PaymentMethodNetbanking = "netbanking"
	PaymentMethodUPI        = "upi"
	PaymentMethodIVRS       = "ivrs"
	PaymentMethodEMI        = "emi"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodCashCard   = "cash_card"
)

// PaymentMethod stores a customer's means of payment. A customer has at most
// one default method at a time; setting a new default unsets the prior one in
// the same transaction (see billing.Ledger.SaveDefaultPaymentMethod).
type PaymentMethod struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CustomerID  uint   `gorm:"not null;index:ux_pay_payment_methods_customer_processor,unique,priority:1" json:"customer_id"`
	ProcessorID string `gorm:"type:varchar(191);not null;index:ux_pay_payment_methods_customer_processor,unique,priority:2" json:"processor_id"`

	Type    string `gorm:"type:varchar(32);not null;default:''" json:"type"`
	Brand   string `gorm:"type:varchar(100);default:''" json:"brand,omitempty"`
	Bank    string `gorm:"type:varchar(100);default:''" json:"bank,omitempty"`
	Last4   string `gorm:"type:varchar(4);default:''" json:"last4,omitempty"`
	Default bool   `gorm:"not null;default:false;index" json:"default"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
