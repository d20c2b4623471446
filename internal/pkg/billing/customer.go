package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keerthivasan-d/pay/app/models"
)

// GetOrCreateCustomer resolves the local Customer for an owner, creating the
// gateway customer (and the local row) lazily on first use. A concurrent
// create for the same owner is absorbed by re-reading after the uniqueness
// constraint rejects the duplicate.
func (s *Service) GetOrCreateCustomer(ctx context.Context, ownerType string, ownerID uint, name, email, contact string) (*models.Customer, error) {
	customer, err := s.ledger.FindCustomerByOwner(s.gateway.Name(), ownerType, ownerID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: customer lookup: %v", ErrSyncFailed, err)
	}

	remote, err := s.gateway.CreateCustomer(ctx, CustomerParams{Name: name, Email: email, Contact: contact})
	if err != nil {
		return nil, err
	}

	customer = &models.Customer{
		OwnerType:   ownerType,
		OwnerID:     ownerID,
		Processor:   s.gateway.Name(),
		ProcessorID: remote.ID,
		Email:       email,
		Name:        name,
	}
	if cerr := s.ledger.CreateCustomer(customer); cerr != nil {
		if IsTransientConflict(cerr) {
			time.Sleep(s.retryDelay)
			return s.ledger.FindCustomer(s.gateway.Name(), remote.ID)
		}
		return nil, fmt.Errorf("%w: customer create: %v", ErrSyncFailed, cerr)
	}
	return customer, nil
}

// Subscribe creates a subscription at the gateway for an existing customer
// and reconciles it locally with the already-fetched object, skipping the
// redundant fetch.
func (s *Service) Subscribe(ctx context.Context, customer *models.Customer, plan, name string, totalCount int) (*models.Subscription, error) {
	if totalCount <= 0 {
		// Number of billing cycles the mandate covers.
		totalCount = 12
	}
	remote, err := s.gateway.CreateSubscription(ctx, SubscriptionParams{
		PlanID:         plan,
		CustomerID:     customer.ProcessorID,
		TotalCount:     totalCount,
		CustomerNotify: true,
	})
	if err != nil {
		return nil, err
	}
	return s.SyncSubscription(ctx, remote.ID, remote, name, DefaultMaxRetries)
}

// AddPaymentMethod stores a payment method supplied out of band (checkout
// form, manual entry) as the customer's default. processorID may be empty for
// methods the gateway does not identify; a local id is assigned then.
func (s *Service) AddPaymentMethod(ctx context.Context, customer *models.Customer, processorID string, details PaymentMethodDetails) (*models.PaymentMethod, error) {
	_ = ctx
	if processorID == "" {
		processorID = uuid.New().String()
	}
	pm := &models.PaymentMethod{
		CustomerID:  customer.ID,
		ProcessorID: processorID,
		Type:        details.Type,
		Brand:       details.Brand,
		Bank:        details.Bank,
		Last4:       details.Last4,
	}
	if err := s.ledger.SaveDefaultPaymentMethod(pm); err != nil {
		return nil, fmt.Errorf("%w: payment method %s: %v", ErrSyncFailed, processorID, err)
	}
	return pm, nil
}

// SyncPaymentMethod derives the customer's default payment method from a
// payment, since this gateway exposes no standalone payment-method objects.
// The write goes through the ledger's single default-method call site so the
// prior default is unset atomically. Orphaned payments are a no-op.
func (s *Service) SyncPaymentMethod(ctx context.Context, paymentID string, object *Payment) (*models.PaymentMethod, error) {
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
		return nil, fmt.Errorf("%w: payment method %s: customer lookup: %v", ErrSyncFailed, object.ID, err)
	}

	pm, err := s.ledger.DefaultPaymentMethod(customer.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment method %s: default lookup: %v", ErrSyncFailed, object.ID, err)
		}
		pm = &models.PaymentMethod{CustomerID: customer.ID}
	}

	details := s.gateway.ClassifyPaymentMethod(object)
	pm.Type = details.Type
	pm.Brand = details.Brand
	pm.Bank = details.Bank
	pm.Last4 = details.Last4
	if object.Card != nil && object.Card.ID != "" {
		pm.ProcessorID = object.Card.ID
	}
	if pm.ProcessorID == "" {
		// The gateway assigns no id to non-card methods.
		pm.ProcessorID = uuid.New().String()
	}

	if err := s.ledger.SaveDefaultPaymentMethod(pm); err != nil {
		return nil, fmt.Errorf("%w: payment method %s: %v", ErrSyncFailed, object.ID, err)
	}
	return pm, nil
}
