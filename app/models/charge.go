package models

import "time"

// ChargeLineItem is one billable component of the invoice behind a charge.
// Nested gateway structures are flattened into plain fields on sync; currency
// is tied to the charge, so storing it per line would be duplication.
type ChargeLineItem struct {
	ProcessorID   string `json:"processor_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Quantity      int64  `json:"quantity"`
	UnitAmount    int64  `json:"unit_amount"`
	Amount        int64  `json:"amount"`
	NetAmount     int64  `json:"net_amount"`
	GrossAmount   int64  `json:"gross_amount"`
	TaxAmount     int64  `json:"tax_amount"`
	TaxableAmount int64  `json:"taxable_amount"`
	TaxInclusive  bool   `json:"tax_inclusive"`
}

// ChargeRefund is one refund issued against a charge, kept ordered ascending
// by refund creation time.
type ChargeRefund struct {
	ProcessorID string    `json:"processor_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Charge mirrors one captured or attempted payment at the processor. At most
// one row exists per (customer, processor_id); repeated syncs update in place.
// Monetary fields are integer minor units (paise), copied verbatim.
type Charge struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CustomerID  uint   `gorm:"not null;index:ux_pay_charges_customer_processor,unique,priority:1" json:"customer_id"`
	ProcessorID string `gorm:"type:varchar(191);not null;index:ux_pay_charges_customer_processor,unique,priority:2" json:"processor_id"`

	Amount         int64  `gorm:"not null;default:0" json:"amount"`
	AmountCaptured int64  `gorm:"not null;default:0" json:"amount_captured"`
	AmountRefunded int64  `gorm:"not null;default:0" json:"amount_refunded"`
	Subtotal       int64  `gorm:"not null;default:0" json:"subtotal"`
	TaxAmount      int64  `gorm:"not null;default:0" json:"tax_amount"`
	Currency       string `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	Status         string `gorm:"type:varchar(32);not null;default:'';index" json:"status"`

	PaymentMethodType string `gorm:"type:varchar(32);default:''" json:"payment_method_type"`
	Brand             string `gorm:"type:varchar(100);default:''" json:"brand,omitempty"`
	Bank              string `gorm:"type:varchar(100);default:''" json:"bank,omitempty"`
	Last4             string `gorm:"type:varchar(4);default:''" json:"last4,omitempty"`

	InvoiceID      string `gorm:"type:varchar(191);default:'';index" json:"invoice_id,omitempty"`
	SubscriptionID *uint  `gorm:"index" json:"subscription_id,omitempty"`
	BankRefNo      string `gorm:"type:varchar(100);default:''" json:"bank_ref_no,omitempty"`
	ErrorDesc      string `gorm:"type:text" json:"error_description,omitempty"`

	PeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`

	LineItems []ChargeLineItem  `gorm:"serializer:json;type:longtext" json:"line_items"`
	Refunds   []ChargeRefund    `gorm:"serializer:json;type:longtext" json:"refunds"`
	Metadata  map[string]string `gorm:"serializer:json;type:longtext" json:"metadata"`

	// CreatedAt carries the processor-side creation time; sync sets it
	// explicitly before the row is written.
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
