package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/keerthivasan-d/pay/app/models"
)

// memLedger is an in-memory Ledger with the same not-found and uniqueness
// semantics as the GORM implementation: missing rows return
// gorm.ErrRecordNotFound, duplicate unique keys return gorm.ErrDuplicatedKey.
type memLedger struct {
	mu     sync.Mutex
	nextID uint

	customers map[uint]*models.Customer
	charges   map[uint]*models.Charge
	subs      map[uint]*models.Subscription
	methods   map[uint]*models.PaymentMethod
	events    map[uint]*models.WebhookEvent

	chargeCreates int
	// createChargeErr, when set, makes every CreateCharge fail with it.
	createChargeErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		customers: make(map[uint]*models.Customer),
		charges:   make(map[uint]*models.Charge),
		subs:      make(map[uint]*models.Subscription),
		methods:   make(map[uint]*models.PaymentMethod),
		events:    make(map[uint]*models.WebhookEvent),
	}
}

func (l *memLedger) id() uint {
	l.nextID++
	return l.nextID
}

func (l *memLedger) FindCustomer(processor, processorID string) (*models.Customer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.customers {
		if c.Processor == processor && c.ProcessorID == processorID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *memLedger) FindCustomerByOwner(processor, ownerType string, ownerID uint) (*models.Customer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.customers {
		if c.Processor == processor && c.OwnerType == ownerType && c.OwnerID == ownerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *memLedger) GetCustomer(id uint) (*models.Customer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (l *memLedger) CreateCustomer(c *models.Customer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.customers {
		if existing.Processor == c.Processor && existing.ProcessorID == c.ProcessorID {
			return gorm.ErrDuplicatedKey
		}
	}
	c.ID = l.id()
	cp := *c
	l.customers[c.ID] = &cp
	return nil
}

func (l *memLedger) FindCharge(customerID uint, processorID string) (*models.Charge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.charges {
		if ch.CustomerID == customerID && ch.ProcessorID == processorID {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *memLedger) CreateCharge(ch *models.Charge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chargeCreates++
	if l.createChargeErr != nil {
		return l.createChargeErr
	}
	for _, existing := range l.charges {
		if existing.CustomerID == ch.CustomerID && existing.ProcessorID == ch.ProcessorID {
			return gorm.ErrDuplicatedKey
		}
	}
	ch.ID = l.id()
	cp := *ch
	l.charges[ch.ID] = &cp
	return nil
}

func (l *memLedger) UpdateChargeLocked(id uint, apply func(*models.Charge) error) (*models.Charge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.charges[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ch
	if err := apply(&cp); err != nil {
		return nil, err
	}
	l.charges[id] = &cp
	out := cp
	return &out, nil
}

func (l *memLedger) FindSubscription(customerID uint, processorID string) (*models.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		if s.CustomerID == customerID && s.ProcessorID == processorID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *memLedger) GetSubscription(id uint) (*models.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (l *memLedger) CreateSubscription(s *models.Subscription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.subs {
		if existing.CustomerID == s.CustomerID && existing.ProcessorID == s.ProcessorID {
			return gorm.ErrDuplicatedKey
		}
	}
	s.ID = l.id()
	cp := *s
	l.subs[s.ID] = &cp
	return nil
}

func (l *memLedger) UpdateSubscriptionLocked(id uint, apply func(*models.Subscription) error) (*models.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	if err := apply(&cp); err != nil {
		return nil, err
	}
	l.subs[id] = &cp
	out := cp
	return &out, nil
}

func (l *memLedger) DefaultPaymentMethod(customerID uint) (*models.PaymentMethod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pm := range l.methods {
		if pm.CustomerID == customerID && pm.Default {
			cp := *pm
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *memLedger) SaveDefaultPaymentMethod(pm *models.PaymentMethod) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.methods {
		if existing.CustomerID == pm.CustomerID && existing.ID != pm.ID {
			existing.Default = false
		}
	}
	if pm.ID == 0 {
		pm.ID = l.id()
	}
	pm.Default = true
	cp := *pm
	l.methods[pm.ID] = &cp
	return nil
}

func (l *memLedger) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.events {
		if existing.Processor == event.Processor && existing.ProcessorEventID == event.ProcessorEventID {
			cp := *existing
			return false, &cp, nil
		}
	}
	event.ID = l.id()
	cp := *event
	l.events[event.ID] = &cp
	out := cp
	return true, &out, nil
}

func (l *memLedger) GetWebhookEvent(id uint) (*models.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (l *memLedger) MarkWebhookProcessed(id uint, processingError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now().UTC()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	return nil
}

func (l *memLedger) ListUnprocessedWebhookEvents(olderThanMinutes, limit int) ([]models.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)
	var out []models.WebhookEvent
	for _, e := range l.events {
		if e.ProcessedAt == nil && e.CreatedAt.Before(cutoff) {
			out = append(out, *e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (l *memLedger) chargeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.charges)
}

func (l *memLedger) methodCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.methods)
}

// fakeGateway serves canned remote objects and records outbound calls. Status
// folding and payment-method classification delegate to the real client so
// tests exercise the production mappings.
type fakeGateway struct {
	mu sync.Mutex

	payments      map[string]*Payment
	invoices      map[string]*Invoice
	subscriptions map[string]*RemoteSubscription

	createdCustomers []CustomerParams
	createdSubs      []SubscriptionParams
	cancelCalls      []bool
	cancelErr        error
	cancelResult     *RemoteSubscription
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:      make(map[string]*Payment),
		invoices:      make(map[string]*Invoice),
		subscriptions: make(map[string]*RemoteSubscription),
	}
}

func (g *fakeGateway) Name() string { return models.ProcessorRazorpay }

func (g *fakeGateway) FetchPayment(ctx context.Context, id string) (*Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, &GatewayError{Processor: g.Name(), Status: 404, Message: "payment not found"}
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) FetchInvoice(ctx context.Context, id string) (*Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[id]
	if !ok {
		return nil, &GatewayError{Processor: g.Name(), Status: 404, Message: "invoice not found"}
	}
	cp := *inv
	return &cp, nil
}

func (g *fakeGateway) FetchSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subscriptions[id]
	if !ok {
		return nil, &GatewayError{Processor: g.Name(), Status: 404, Message: "subscription not found"}
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, params CustomerParams) (*RemoteCustomer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdCustomers = append(g.createdCustomers, params)
	return &RemoteCustomer{
		ID:      fmt.Sprintf("cust_%03d", len(g.createdCustomers)),
		Name:    params.Name,
		Email:   params.Email,
		Contact: params.Contact,
	}, nil
}

func (g *fakeGateway) FetchCustomer(ctx context.Context, id string) (*RemoteCustomer, error) {
	return &RemoteCustomer{ID: id}, nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdSubs = append(g.createdSubs, params)
	quantity := params.Quantity
	if quantity == 0 {
		quantity = 1
	}
	return &RemoteSubscription{
		ID:         fmt.Sprintf("sub_%03d", len(g.createdSubs)),
		CustomerID: params.CustomerID,
		PlanID:     params.PlanID,
		Quantity:   quantity,
		Status:     "created",
		CreatedAt:  time.Now().Unix(),
	}, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, id string, atCycleEnd bool) (*RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls = append(g.cancelCalls, atCycleEnd)
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	if g.cancelResult != nil {
		cp := *g.cancelResult
		return &cp, nil
	}
	return &RemoteSubscription{ID: id, Status: "cancelled"}, nil
}

func (g *fakeGateway) ClassifyPaymentMethod(p *Payment) PaymentMethodDetails {
	return (&RazorpayClient{}).ClassifyPaymentMethod(p)
}

func (g *fakeGateway) SubscriptionStatus(remote string) string {
	return (&RazorpayClient{}).SubscriptionStatus(remote)
}

func (g *fakeGateway) CancelledStatus() string { return "cancelled" }

func newTestService(l Ledger, g Gateway) *Service {
	return &Service{
		ledger:             l,
		gateway:            g,
		defaultProductName: "default",
		retryDelay:         time.Millisecond,
	}
}

func seedCustomer(t interface{ Fatalf(string, ...interface{}) }, l *memLedger, processor, processorID string) *models.Customer {
	c := &models.Customer{
		OwnerType:   "users",
		OwnerID:     1,
		Processor:   processor,
		ProcessorID: processorID,
		Email:       "owner@example.com",
		Name:        "Owner",
	}
	if err := l.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return c
}

func seedSubscription(t interface{ Fatalf(string, ...interface{}) }, l *memLedger, sub *models.Subscription) *models.Subscription {
	if err := l.CreateSubscription(sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func i64p(v int64) *int64 { return &v }

func timep(t time.Time) *time.Time { return &t }
