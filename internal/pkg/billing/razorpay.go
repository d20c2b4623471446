package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keerthivasan-d/pay/app/models"
	"github.com/keerthivasan-d/pay/internal/pkg/env"
)

const defaultRazorpayAPIBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient talks to the Razorpay REST API and implements Gateway.
type RazorpayClient struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewRazorpayClientFromEnv builds a client from RAZORPAY_* env values.
func NewRazorpayClientFromEnv() *RazorpayClient {
	return &RazorpayClient{
		KeyID:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *RazorpayClient) Name() string { return models.ProcessorRazorpay }

// notesMap tolerates Razorpay's habit of returning notes as [] when empty.
type notesMap map[string]string

func (n *notesMap) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '[' || string(trimmed) == "null" {
		*n = nil
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	*n = out
	return nil
}

type razorpayPayment struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customer_id"`
	OrderID        string        `json:"order_id"`
	InvoiceID      string        `json:"invoice_id"`
	Amount         int64         `json:"amount"`
	AmountRefunded int64         `json:"amount_refunded"`
	Currency       string        `json:"currency"`
	Status         string        `json:"status"`
	ErrorDesc      string        `json:"error_description"`
	CreatedAt      int64         `json:"created_at"`
	Notes          notesMap      `json:"notes"`
	Method         string        `json:"method"`
	Card           *razorpayCard `json:"card"`
	Wallet         string        `json:"wallet"`
	Bank           string        `json:"bank"`
	VPA            string        `json:"vpa"`
}

type razorpayCard struct {
	ID      string `json:"id"`
	Network string `json:"network"`
	Last4   string `json:"last4"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayCollection[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

type razorpayInvoice struct {
	ID             string             `json:"id"`
	CustomerID     string             `json:"customer_id"`
	SubscriptionID string             `json:"subscription_id"`
	AmountPaid     int64              `json:"amount_paid"`
	TaxAmount      int64              `json:"tax_amount"`
	BillingStart   int64              `json:"billing_start"`
	BillingEnd     int64              `json:"billing_end"`
	LineItems      []razorpayLineItem `json:"line_items"`
}

type razorpayLineItem struct {
	ID            string `json:"id"`
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

type razorpaySubscription struct {
	ID           string   `json:"id"`
	CustomerID   string   `json:"customer_id"`
	PlanID       string   `json:"plan_id"`
	Quantity     int      `json:"quantity"`
	Status       string   `json:"status"`
	CurrentStart *int64   `json:"current_start"`
	CurrentEnd   *int64   `json:"current_end"`
	StartAt      *int64   `json:"start_at"`
	EndAt        *int64   `json:"end_at"`
	EndedAt      *int64   `json:"ended_at"`
	CreatedAt    int64    `json:"created_at"`
	Notes        notesMap `json:"notes"`
}

type razorpayCustomer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

func (c *RazorpayClient) FetchPayment(ctx context.Context, id string) (*Payment, error) {
	var raw razorpayPayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+id, nil, &raw); err != nil {
		return nil, err
	}
	// Refunds live on a sub-resource, not the payment entity.
	var refunds razorpayCollection[razorpayRefund]
	if err := c.do(ctx, http.MethodGet, "/payments/"+id+"/refunds", nil, &refunds); err != nil {
		return nil, err
	}
	return paymentFromRazorpay(&raw, refunds.Items), nil
}

func (c *RazorpayClient) FetchInvoice(ctx context.Context, id string) (*Invoice, error) {
	var raw razorpayInvoice
	if err := c.do(ctx, http.MethodGet, "/invoices/"+id, nil, &raw); err != nil {
		return nil, err
	}
	return invoiceFromRazorpay(&raw), nil
}

func (c *RazorpayClient) FetchSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	var raw razorpaySubscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+id, nil, &raw); err != nil {
		return nil, err
	}
	return subscriptionFromRazorpay(&raw), nil
}

func (c *RazorpayClient) CreateCustomer(ctx context.Context, params CustomerParams) (*RemoteCustomer, error) {
	body := map[string]interface{}{
		"name":  params.Name,
		"email": params.Email,
		// Reusing an email must not fail customer creation.
		"fail_existing": "0",
	}
	if params.Contact != "" {
		body["contact"] = params.Contact
	}
	var raw razorpayCustomer
	if err := c.do(ctx, http.MethodPost, "/customers", body, &raw); err != nil {
		return nil, err
	}
	return customerFromRazorpay(&raw), nil
}

func (c *RazorpayClient) FetchCustomer(ctx context.Context, id string) (*RemoteCustomer, error) {
	var raw razorpayCustomer
	if err := c.do(ctx, http.MethodGet, "/customers/"+id, nil, &raw); err != nil {
		return nil, err
	}
	return customerFromRazorpay(&raw), nil
}

func (c *RazorpayClient) CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error) {
	body := map[string]interface{}{
		"plan_id":     params.PlanID,
		"customer_id": params.CustomerID,
		"total_count": params.TotalCount,
	}
	if params.Quantity > 0 {
		body["quantity"] = params.Quantity
	}
	if params.CustomerNotify {
		body["customer_notify"] = 1
	}
	if params.StartAt != nil {
		body["start_at"] = *params.StartAt
	}
	if len(params.Notes) > 0 {
		body["notes"] = params.Notes
	}
	var raw razorpaySubscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &raw); err != nil {
		return nil, err
	}
	return subscriptionFromRazorpay(&raw), nil
}

func (c *RazorpayClient) CancelSubscription(ctx context.Context, id string, atCycleEnd bool) (*RemoteSubscription, error) {
	cycleEnd := 0
	if atCycleEnd {
		cycleEnd = 1
	}
	body := map[string]interface{}{"cancel_at_cycle_end": cycleEnd}
	var raw razorpaySubscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions/"+id+"/cancel", body, &raw); err != nil {
		return nil, err
	}
	return subscriptionFromRazorpay(&raw), nil
}

// ClassifyPaymentMethod maps Razorpay's method discriminator to normalized
// payment-method details. Unknown methods classify to the zero value.
func (c *RazorpayClient) ClassifyPaymentMethod(p *Payment) PaymentMethodDetails {
	switch p.Method {
	case "card":
		d := PaymentMethodDetails{Type: models.PaymentMethodCard}
		if p.Card != nil {
			d.Brand = p.Card.Network
			d.Last4 = p.Card.Last4
		}
		return d
	case "wallet":
		return PaymentMethodDetails{Type: models.PaymentMethodWallet, Brand: p.Wallet}
	case "netbanking":
		return PaymentMethodDetails{Type: models.PaymentMethodNetbanking, Bank: p.Bank}
	case "upi":
		brand := p.VPA
		if brand == "" {
			brand = "upi"
		}
		return PaymentMethodDetails{Type: models.PaymentMethodUPI, Brand: brand}
	default:
		return PaymentMethodDetails{}
	}
}

// SubscriptionStatus folds Razorpay subscription statuses onto the local
// five-state enum. Created/authenticated subscriptions have not billed yet,
// which is as close to trialing as this gateway gets.
func (c *RazorpayClient) SubscriptionStatus(remote string) string {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "created", "authenticated":
		return models.SubscriptionStatusTrialing
	case "pending", "halted":
		return models.SubscriptionStatusPastDue
	case "cancelled", "completed", "expired":
		return models.SubscriptionStatusCanceled
	case "paused":
		return models.SubscriptionStatusPaused
	default:
		return models.SubscriptionStatusActive
	}
}

func (c *RazorpayClient) CancelledStatus() string { return "cancelled" }

// do performs one authenticated API call and decodes the response into out.
// Any non-2xx response becomes a *GatewayError carrying the API's message.
func (c *RazorpayClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &GatewayError{Processor: c.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{
			Processor: c.Name(),
			Status:    resp.StatusCode,
			Message:   razorpayErrorMessage(data),
		}
	}
	return json.Unmarshal(data, out)
}

func razorpayErrorMessage(body []byte) string {
	var raw struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err == nil && raw.Error.Description != "" {
		return raw.Error.Description
	}
	return string(body)
}

func paymentFromRazorpay(raw *razorpayPayment, refunds []razorpayRefund) *Payment {
	p := &Payment{
		ID:             raw.ID,
		CustomerID:     raw.CustomerID,
		OrderID:        raw.OrderID,
		InvoiceID:      raw.InvoiceID,
		Amount:         raw.Amount,
		AmountRefunded: raw.AmountRefunded,
		Currency:       raw.Currency,
		Status:         raw.Status,
		ErrorDesc:      raw.ErrorDesc,
		CreatedAt:      raw.CreatedAt,
		Notes:          raw.Notes,
		Method:         raw.Method,
		Wallet:         raw.Wallet,
		Bank:           raw.Bank,
		VPA:            raw.VPA,
	}
	if raw.Card != nil {
		p.Card = &CardDetails{ID: raw.Card.ID, Network: raw.Card.Network, Last4: raw.Card.Last4}
	}
	for _, r := range refunds {
		p.Refunds = append(p.Refunds, Refund{ID: r.ID, Amount: r.Amount, Status: r.Status, CreatedAt: r.CreatedAt})
	}
	return p
}

func invoiceFromRazorpay(raw *razorpayInvoice) *Invoice {
	inv := &Invoice{
		ID:             raw.ID,
		CustomerID:     raw.CustomerID,
		SubscriptionID: raw.SubscriptionID,
		AmountPaid:     raw.AmountPaid,
		TaxAmount:      raw.TaxAmount,
		BillingStart:   raw.BillingStart,
		BillingEnd:     raw.BillingEnd,
	}
	for _, li := range raw.LineItems {
		inv.LineItems = append(inv.LineItems, InvoiceLineItem{
			ID:            li.ID,
			Name:          li.Name,
			Description:   li.Description,
			Quantity:      li.Quantity,
			UnitAmount:    li.UnitAmount,
			Amount:        li.Amount,
			NetAmount:     li.NetAmount,
			GrossAmount:   li.GrossAmount,
			TaxAmount:     li.TaxAmount,
			TaxableAmount: li.TaxableAmount,
			TaxInclusive:  li.TaxInclusive,
		})
	}
	return inv
}

func subscriptionFromRazorpay(raw *razorpaySubscription) *RemoteSubscription {
	return &RemoteSubscription{
		ID:           raw.ID,
		CustomerID:   raw.CustomerID,
		PlanID:       raw.PlanID,
		Quantity:     raw.Quantity,
		Status:       raw.Status,
		CurrentStart: raw.CurrentStart,
		CurrentEnd:   raw.CurrentEnd,
		StartAt:      raw.StartAt,
		EndAt:        raw.EndAt,
		CreatedAt:    raw.CreatedAt,
		Notes:        raw.Notes,
	}
}

func customerFromRazorpay(raw *razorpayCustomer) *RemoteCustomer {
	return &RemoteCustomer{ID: raw.ID, Name: raw.Name, Email: raw.Email, Contact: raw.Contact}
}
