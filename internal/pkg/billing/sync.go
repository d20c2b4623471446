package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/keerthivasan-d/pay/app/models"
	"github.com/keerthivasan-d/pay/internal/pkg/env"
)

const defaultRetryDelay = 100 * time.Millisecond

// DefaultMaxRetries bounds how often a sync is re-attempted after a
// transient storage conflict. The total attempt count is DefaultMaxRetries+1.
const DefaultMaxRetries = 1

// Service reconciles remote gateway events into the local ledger and drives
// the subscription lifecycle. One Service instance serves one gateway.
type Service struct {
	ledger             Ledger
	gateway            Gateway
	defaultProductName string
	retryDelay         time.Duration
}

// NewService creates a billing service from an injected ledger and gateway.
func NewService(ledger Ledger, gateway Gateway) *Service {
	return &Service{
		ledger:             ledger,
		gateway:            gateway,
		defaultProductName: env.GetEnv("PAY_DEFAULT_PRODUCT_NAME", "default"),
		retryDelay:         defaultRetryDelay,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway) *Service {
	return NewService(NewLedger(db), gateway)
}

// Ledger exposes the underlying store for callers that only read.
func (s *Service) Ledger() Ledger { return s.ledger }

// Gateway exposes the gateway adapter this service syncs from.
func (s *Service) Gateway() Gateway { return s.gateway }

// chargeAttributes is the full attribute set one sync writes onto a Charge.
// Built field by field; optional fields use pointers so absence stays absent.
type chargeAttributes struct {
	Amount         int64
	AmountCaptured int64
	AmountRefunded int64
	Subtotal       int64
	TaxAmount      int64
	Currency       string
	Status         string
	ErrorDesc      string
	BankRefNo      string
	Method         PaymentMethodDetails
	InvoiceID      string
	SubscriptionID *uint
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	LineItems      []models.ChargeLineItem
	Refunds        []models.ChargeRefund
	Metadata       map[string]string
	CreatedAt      time.Time
}

func (a chargeAttributes) apply(ch *models.Charge) {
	ch.Amount = a.Amount
	ch.AmountCaptured = a.AmountCaptured
	ch.AmountRefunded = a.AmountRefunded
	ch.Subtotal = a.Subtotal
	ch.TaxAmount = a.TaxAmount
	ch.Currency = a.Currency
	ch.Status = a.Status
	ch.ErrorDesc = a.ErrorDesc
	ch.BankRefNo = a.BankRefNo
	ch.PaymentMethodType = a.Method.Type
	ch.Brand = a.Method.Brand
	ch.Bank = a.Method.Bank
	ch.Last4 = a.Method.Last4
	// Invoice linkage is only reported while the gateway still returns the
	// invoice; a later sync without it must not sever the stored association.
	if a.InvoiceID != "" {
		ch.InvoiceID = a.InvoiceID
	}
	if a.SubscriptionID != nil {
		ch.SubscriptionID = a.SubscriptionID
	}
	ch.PeriodStart = a.PeriodStart
	ch.PeriodEnd = a.PeriodEnd
	ch.LineItems = a.LineItems
	ch.Refunds = a.Refunds
	ch.Metadata = a.Metadata
	if !a.CreatedAt.IsZero() {
		ch.CreatedAt = a.CreatedAt
	}
}

// subscriptionAttributes is the attribute set one sync writes onto a
// Subscription. Period bounds and trial/end timestamps stay unset when the
// remote object does not report them.
type subscriptionAttributes struct {
	ProcessorPlan      string
	Quantity           int
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEndsAt        *time.Time
	EndsAt             *time.Time
	Metadata           map[string]string
	CreatedAt          time.Time
}

func (a subscriptionAttributes) apply(sub *models.Subscription) {
	sub.ProcessorPlan = a.ProcessorPlan
	sub.Quantity = a.Quantity
	sub.Status = a.Status
	sub.CurrentPeriodStart = a.CurrentPeriodStart
	sub.CurrentPeriodEnd = a.CurrentPeriodEnd
	sub.Metadata = a.Metadata
	// Absent optional timestamps leave the stored value alone; only a
	// reported value overwrites.
	if a.TrialEndsAt != nil {
		sub.TrialEndsAt = a.TrialEndsAt
	}
	if a.EndsAt != nil {
		sub.EndsAt = a.EndsAt
	}
	if !a.CreatedAt.IsZero() {
		sub.CreatedAt = a.CreatedAt
	}
}

// SyncCharge idempotently reconciles one remote payment into one Charge row.
// Pass object to skip the gateway fetch (direct API-response entry point).
// Payments without a remote customer, or whose customer is unknown locally,
// are orphaned events: the sync returns (nil, nil) and writes nothing.
func (s *Service) SyncCharge(ctx context.Context, paymentID string, object *Payment, maxRetries int) (*models.Charge, error) {
	if object == nil {
		fetched, err := s.gateway.FetchPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		object = fetched
	}

	if object.CustomerID == "" {
		return nil, nil
	}
	customer, err := s.ledger.FindCustomer(s.gateway.Name(), object.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: charge %s: customer lookup: %v", ErrSyncFailed, object.ID, err)
	}

	refunds := make([]models.ChargeRefund, 0, len(object.Refunds))
	for _, r := range object.Refunds {
		refunds = append(refunds, models.ChargeRefund{
			ProcessorID: r.ID,
			Amount:      r.Amount,
			Status:      r.Status,
			CreatedAt:   time.Unix(r.CreatedAt, 0).UTC(),
		})
	}
	sort.SliceStable(refunds, func(i, j int) bool {
		return refunds[i].CreatedAt.Before(refunds[j].CreatedAt)
	})

	createdAt := time.Unix(object.CreatedAt, 0).UTC()
	attrs := chargeAttributes{
		Amount:         object.Amount,
		AmountCaptured: object.Amount,
		AmountRefunded: object.AmountRefunded,
		Currency:       object.Currency,
		Status:         object.Status,
		ErrorDesc:      object.ErrorDesc,
		Method:         s.gateway.ClassifyPaymentMethod(object),
		LineItems:      []models.ChargeLineItem{},
		Refunds:        refunds,
		Metadata:       object.Notes,
		CreatedAt:      createdAt,
	}

	if object.InvoiceID != "" {
		invoice, err := s.gateway.FetchInvoice(ctx, object.InvoiceID)
		if err != nil {
			return nil, err
		}
		attrs.InvoiceID = invoice.ID
		// Associate the charge with its subscription when we already have it.
		if invoice.SubscriptionID != "" {
			if sub, err := s.ledger.FindSubscription(customer.ID, invoice.SubscriptionID); err == nil {
				attrs.SubscriptionID = &sub.ID
			}
		}
		start := time.Unix(invoice.BillingStart, 0).UTC()
		end := time.Unix(invoice.BillingEnd, 0).UTC()
		attrs.PeriodStart = &start
		attrs.PeriodEnd = &end
		attrs.Subtotal = invoice.AmountPaid
		attrs.TaxAmount = invoice.TaxAmount
		for _, li := range invoice.LineItems {
			attrs.LineItems = append(attrs.LineItems, models.ChargeLineItem{
				ProcessorID:   li.ID,
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
	} else {
		// Charges without invoices: the billing period is the payment itself.
		attrs.PeriodStart = &createdAt
		attrs.PeriodEnd = &createdAt
	}

	return s.upsertCharge(customer.ID, object.ID, attrs, maxRetries)
}

// SyncCCAvenueCharge reconciles one decrypted CCAvenue transaction response
// into a Charge. The customer reference travels in merchant_param1 and the
// charge is keyed by tracking_id.
func (s *Service) SyncCCAvenueCharge(ctx context.Context, resp CCAvenueResponse, maxRetries int) (*models.Charge, error) {
	_ = ctx
	if resp.CustomerRef() == "" || resp.TrackingID() == "" {
		return nil, nil
	}
	customer, err := s.ledger.FindCustomer(models.ProcessorCcavenue, resp.CustomerRef())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: ccavenue charge %s: customer lookup: %v", ErrSyncFailed, resp.TrackingID(), err)
	}

	transDate := resp.TransactionDate()
	attrs := chargeAttributes{
		Amount:         resp.AmountPaise(),
		AmountCaptured: resp.AmountPaise(),
		Currency:       resp.get("currency"),
		Status:         resp.get("order_status"),
		ErrorDesc:      resp.ErrorDescription(),
		BankRefNo:      resp.get("bank_ref_no"),
		Method:         ClassifyCCAvenuePaymentMethod(resp),
		LineItems:      []models.ChargeLineItem{},
		Refunds:        []models.ChargeRefund{},
		// This gateway reports only a transaction date; both period bounds
		// collapse to it.
		PeriodStart: &transDate,
		PeriodEnd:   &transDate,
		CreatedAt:   transDate,
	}

	return s.upsertCharge(customer.ID, resp.TrackingID(), attrs, maxRetries)
}

// SyncSubscription idempotently reconciles one remote subscription into one
// Subscription row. name is used only on first creation; empty means the
// configured default product name.
func (s *Service) SyncSubscription(ctx context.Context, subscriptionID string, object *RemoteSubscription, name string, maxRetries int) (*models.Subscription, error) {
	if object == nil {
		fetched, err := s.gateway.FetchSubscription(ctx, subscriptionID)
		if err != nil {
			return nil, err
		}
		object = fetched
	}

	customer, err := s.ledger.FindCustomer(s.gateway.Name(), object.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: subscription %s: customer lookup: %v", ErrSyncFailed, object.ID, err)
	}

	attrs := subscriptionAttributes{
		ProcessorPlan: object.PlanID,
		Quantity:      object.Quantity,
		Status:        s.gateway.SubscriptionStatus(object.Status),
		Metadata:      object.Notes,
		CreatedAt:     time.Unix(object.CreatedAt, 0).UTC(),
	}
	if object.CurrentStart != nil {
		t := time.Unix(*object.CurrentStart, 0).UTC()
		attrs.CurrentPeriodStart = &t
	}
	if object.CurrentEnd != nil {
		t := time.Unix(*object.CurrentEnd, 0).UTC()
		attrs.CurrentPeriodEnd = &t
	}
	// The gateway has no native trial concept; a future start_at is the
	// subscription's trial window.
	if object.StartAt != nil {
		t := time.Unix(*object.StartAt, 0).UTC()
		attrs.TrialEndsAt = &t
	}
	// Cancelled subscriptions keep access through the remote end time.
	if strings.EqualFold(object.Status, s.gateway.CancelledStatus()) && object.EndAt != nil {
		t := time.Unix(*object.EndAt, 0).UTC()
		attrs.EndsAt = &t
	}

	if name == "" {
		name = s.defaultProductName
	}
	return s.upsertSubscription(customer.ID, object.ID, name, attrs, maxRetries)
}

// upsertCharge runs the locked update-or-create step, retrying the whole
// decision a bounded number of times when a concurrent duplicate create trips
// the uniqueness constraint.
func (s *Service) upsertCharge(customerID uint, processorID string, attrs chargeAttributes, maxRetries int) (*models.Charge, error) {
	attempts := 0
	for {
		existing, err := s.ledger.FindCharge(customerID, processorID)
		switch {
		case err == nil:
			updated, uerr := s.ledger.UpdateChargeLocked(existing.ID, func(ch *models.Charge) error {
				attrs.apply(ch)
				return nil
			})
			if uerr == nil {
				return updated, nil
			}
			err = uerr
		case errors.Is(err, gorm.ErrRecordNotFound):
			ch := &models.Charge{CustomerID: customerID, ProcessorID: processorID}
			attrs.apply(ch)
			cerr := s.ledger.CreateCharge(ch)
			if cerr == nil {
				return ch, nil
			}
			err = cerr
		default:
			return nil, fmt.Errorf("%w: charge %s: %v", ErrSyncFailed, processorID, err)
		}

		if !IsTransientConflict(err) || attempts >= maxRetries {
			return nil, fmt.Errorf("%w: charge %s: %v", ErrSyncFailed, processorID, err)
		}
		attempts++
		time.Sleep(s.retryDelay)
	}
}

func (s *Service) upsertSubscription(customerID uint, processorID, name string, attrs subscriptionAttributes, maxRetries int) (*models.Subscription, error) {
	attempts := 0
	for {
		existing, err := s.ledger.FindSubscription(customerID, processorID)
		switch {
		case err == nil:
			updated, uerr := s.ledger.UpdateSubscriptionLocked(existing.ID, func(sub *models.Subscription) error {
				attrs.apply(sub)
				return nil
			})
			if uerr == nil {
				return updated, nil
			}
			err = uerr
		case errors.Is(err, gorm.ErrRecordNotFound):
			sub := &models.Subscription{CustomerID: customerID, ProcessorID: processorID, Name: name}
			attrs.apply(sub)
			cerr := s.ledger.CreateSubscription(sub)
			if cerr == nil {
				return sub, nil
			}
			err = cerr
		default:
			return nil, fmt.Errorf("%w: subscription %s: %v", ErrSyncFailed, processorID, err)
		}

		if !IsTransientConflict(err) || attempts >= maxRetries {
			return nil, fmt.Errorf("%w: subscription %s: %v", ErrSyncFailed, processorID, err)
		}
		attempts++
		time.Sleep(s.retryDelay)
	}
}
