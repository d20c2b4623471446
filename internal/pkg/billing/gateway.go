package billing

import "context"

// Payment is the gateway-neutral snapshot of one remote payment used by the
// charge sync engine. Amounts are integer minor units exactly as the gateway
// reports them.
type Payment struct {
	ID             string
	CustomerID     string
	OrderID        string
	InvoiceID      string
	Amount         int64
	AmountRefunded int64
	Currency       string
	Status         string
	ErrorDesc      string
	CreatedAt      int64
	Notes          map[string]string

	// Method discriminator plus method-specific sub-fields; which of these
	// are populated depends on Method.
	Method string
	Card   *CardDetails
	Wallet string
	Bank   string
	VPA    string

	Refunds []Refund
}

// CardDetails carries the card sub-entity of a card payment.
type CardDetails struct {
	ID      string
	Network string
	Last4   string
}

// Refund is one refund attached to a payment.
type Refund struct {
	ID        string
	Amount    int64
	Status    string
	CreatedAt int64
}

// Invoice is the remote invoice a payment may reference. Its billing window
// becomes the charge's period bounds and its line items are flattened onto
// the charge.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	TaxAmount      int64
	BillingStart   int64
	BillingEnd     int64
	LineItems      []InvoiceLineItem
}

// InvoiceLineItem is one billable component of an invoice.
type InvoiceLineItem struct {
	ID            string
	Name          string
	Description   string
	Quantity      int64
	UnitAmount    int64
	Amount        int64
	NetAmount     int64
	GrossAmount   int64
	TaxAmount     int64
	TaxableAmount int64
	TaxInclusive  bool
}

// RemoteSubscription is the gateway-neutral snapshot of a remote
// subscription. Optional unix timestamps are pointers: absence means the
// field stays unset locally, never defaulted to now.
type RemoteSubscription struct {
	ID           string
	CustomerID   string
	PlanID       string
	Quantity     int
	Status       string
	CurrentStart *int64
	CurrentEnd   *int64
	StartAt      *int64
	EndAt        *int64
	CreatedAt    int64
	Notes        map[string]string
}

// RemoteCustomer is the gateway's customer record.
type RemoteCustomer struct {
	ID      string
	Name    string
	Email   string
	Contact string
}

// CustomerParams are the attributes sent when lazily creating a gateway
// customer.
type CustomerParams struct {
	Name    string
	Email   string
	Contact string
}

// SubscriptionParams are the attributes sent when creating a gateway
// subscription.
type SubscriptionParams struct {
	PlanID         string
	CustomerID     string
	TotalCount     int
	Quantity       int
	CustomerNotify bool
	StartAt        *int64
	Notes          map[string]string
}

// PaymentMethodDetails is the normalized output of a gateway's payment-method
// classifier. Unknown discriminators yield the zero value; callers tolerate
// partial classification.
type PaymentMethodDetails struct {
	Type  string
	Brand string
	Bank  string
	Last4 string
}

// Empty reports whether classification produced nothing.
func (d PaymentMethodDetails) Empty() bool {
	return d == PaymentMethodDetails{}
}

// Gateway is the capability set one payment processor has to provide for the
// generic sync engines. Implementations translate their wire errors into
// *GatewayError; the raw client error type never crosses this boundary.
type Gateway interface {
	// Name returns the processor identifier stored on Customer rows.
	Name() string

	FetchPayment(ctx context.Context, id string) (*Payment, error)
	FetchInvoice(ctx context.Context, id string) (*Invoice, error)
	FetchSubscription(ctx context.Context, id string) (*RemoteSubscription, error)

	CreateCustomer(ctx context.Context, params CustomerParams) (*RemoteCustomer, error)
	FetchCustomer(ctx context.Context, id string) (*RemoteCustomer, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error)
	// CancelSubscription instructs the gateway to cancel either at the end of
	// the current billing cycle or immediately, and returns the updated
	// remote state.
	CancelSubscription(ctx context.Context, id string, atCycleEnd bool) (*RemoteSubscription, error)

	// ClassifyPaymentMethod maps a payment's method discriminator and
	// sub-fields to normalized payment-method details.
	ClassifyPaymentMethod(p *Payment) PaymentMethodDetails

	// SubscriptionStatus folds the gateway's status vocabulary onto the local
	// five-state enum.
	SubscriptionStatus(remote string) string

	// CancelledStatus is the gateway's terminal "cancelled" value, used by the
	// sync engine to detect scheduled/finalized cancellation on the remote
	// object.
	CancelledStatus() string
}
