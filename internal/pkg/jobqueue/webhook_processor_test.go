package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/keerthivasan-d/pay/app/models"
	"github.com/keerthivasan-d/pay/internal/pkg/billing"
)

// eventLedger is the slice of billing.Ledger the webhook processor touches:
// stored events plus a record of mark-processed calls. Everything else
// reports not-found.
type eventLedger struct {
	mu     sync.Mutex
	events map[uint]*models.WebhookEvent
	marks  []markCall
}

type markCall struct {
	id     uint
	errMsg string
}

func newEventLedger() *eventLedger {
	return &eventLedger{events: make(map[uint]*models.WebhookEvent)}
}

func (l *eventLedger) put(event *models.WebhookEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[event.ID] = event
}

func (l *eventLedger) GetWebhookEvent(id uint) (*models.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *event
	return &cp, nil
}

func (l *eventLedger) MarkWebhookProcessed(id uint, processingError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = append(l.marks, markCall{id: id, errMsg: processingError})
	if event, ok := l.events[id]; ok {
		now := time.Now()
		event.ProcessedAt = &now
		event.ProcessingError = processingError
	}
	return nil
}

func (l *eventLedger) ListUnprocessedWebhookEvents(olderThanMinutes, limit int) ([]models.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)
	var out []models.WebhookEvent
	for _, event := range l.events {
		if event.ProcessedAt == nil && event.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (l *eventLedger) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	l.put(event)
	return true, event, nil
}

func (l *eventLedger) FindCustomer(string, string) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) FindCustomerByOwner(string, string, uint) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) GetCustomer(uint) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) CreateCustomer(*models.Customer) error { return nil }

func (l *eventLedger) FindCharge(uint, string) (*models.Charge, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) CreateCharge(*models.Charge) error { return nil }

func (l *eventLedger) UpdateChargeLocked(uint, func(*models.Charge) error) (*models.Charge, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) FindSubscription(uint, string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) GetSubscription(uint) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) CreateSubscription(*models.Subscription) error { return nil }

func (l *eventLedger) UpdateSubscriptionLocked(uint, func(*models.Subscription) error) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) DefaultPaymentMethod(uint) (*models.PaymentMethod, error) {
	return nil, gorm.ErrRecordNotFound
}

func (l *eventLedger) SaveDefaultPaymentMethod(*models.PaymentMethod) error { return nil }

const chargedEventJSON = `{
	"event": "subscription.charged",
	"contains": ["subscription"],
	"created_at": 1717240000,
	"payload": {
		"subscription": {
			"entity": {
				"id": "sub_1",
				"customer_id": "cust_1",
				"plan_id": "plan_gold",
				"status": "active",
				"created_at": 1717230000
			}
		}
	}
}`

func setupProcessorTest(t *testing.T) (*eventLedger, *billing.Webhooks) {
	t.Helper()
	ledger := newEventLedger()
	hooks := billing.NewWebhooks()
	ConfigureProcessors(billing.NewService(ledger, &billing.RazorpayClient{}), hooks)
	t.Cleanup(func() { ConfigureProcessors(nil, nil) })
	return ledger, hooks
}

func TestProcessWebhookJobDispatchesAndMarksProcessed(t *testing.T) {
	ledger, hooks := setupProcessorTest(t)

	var dispatched []string
	hooks.Subscribe("subscription.charged", func(ctx context.Context, event *billing.Event) error {
		require.NotNil(t, event.Subscription)
		dispatched = append(dispatched, event.Subscription.ID)
		return nil
	})

	ledger.put(&models.WebhookEvent{
		ID:          1,
		Processor:   models.ProcessorRazorpay,
		EventType:   "subscription.charged",
		PayloadJSON: chargedEventJSON,
	})

	q := &Queue{}
	job := &Job{ID: "j1", Type: JobTypeProcessWebhook, Payload: ProcessWebhookJobPayload{WebhookEventID: 1}.ToMap()}
	require.NoError(t, q.processWebhookJob(context.Background(), job))

	assert.Equal(t, []string{"sub_1"}, dispatched)
	require.Len(t, ledger.marks, 1)
	assert.Equal(t, markCall{id: 1, errMsg: ""}, ledger.marks[0])
}

func TestProcessWebhookJobDropsUnparseablePayload(t *testing.T) {
	ledger, hooks := setupProcessorTest(t)

	called := false
	hooks.Subscribe("subscription.charged", func(context.Context, *billing.Event) error {
		called = true
		return nil
	})

	ledger.put(&models.WebhookEvent{ID: 2, PayloadJSON: "{not json"})

	q := &Queue{}
	job := &Job{ID: "j2", Type: JobTypeProcessWebhook, Payload: ProcessWebhookJobPayload{WebhookEventID: 2}.ToMap()}
	// A payload that does not parse never will; the job must not retry.
	require.NoError(t, q.processWebhookJob(context.Background(), job))

	assert.False(t, called)
	require.Len(t, ledger.marks, 1)
	assert.Equal(t, uint(2), ledger.marks[0].id)
	assert.NotEmpty(t, ledger.marks[0].errMsg)
}

func TestProcessWebhookJobHandlerFailureBubblesUp(t *testing.T) {
	ledger, hooks := setupProcessorTest(t)

	hooks.Subscribe("subscription.charged", func(context.Context, *billing.Event) error {
		return assert.AnError
	})

	ledger.put(&models.WebhookEvent{ID: 3, PayloadJSON: chargedEventJSON})

	q := &Queue{}
	job := &Job{ID: "j3", Type: JobTypeProcessWebhook, Payload: ProcessWebhookJobPayload{WebhookEventID: 3}.ToMap()}
	err := q.processWebhookJob(context.Background(), job)
	require.ErrorIs(t, err, assert.AnError)

	// Failure is recorded so the retry worker can see it, but the error
	// return leaves the job eligible for the queue's retry machinery.
	require.Len(t, ledger.marks, 1)
	assert.Equal(t, assert.AnError.Error(), ledger.marks[0].errMsg)
}

func TestProcessWebhookJobSkipsAlreadyProcessed(t *testing.T) {
	ledger, hooks := setupProcessorTest(t)

	called := false
	hooks.Subscribe("subscription.charged", func(context.Context, *billing.Event) error {
		called = true
		return nil
	})

	done := time.Now().Add(-time.Minute)
	ledger.put(&models.WebhookEvent{ID: 4, PayloadJSON: chargedEventJSON, ProcessedAt: &done})

	q := &Queue{}
	job := &Job{ID: "j4", Type: JobTypeProcessWebhook, Payload: ProcessWebhookJobPayload{WebhookEventID: 4}.ToMap()}
	require.NoError(t, q.processWebhookJob(context.Background(), job))

	assert.False(t, called)
	assert.Empty(t, ledger.marks)
}

func TestProcessWebhookJobRequiresConfiguration(t *testing.T) {
	ConfigureProcessors(nil, nil)

	q := &Queue{}
	job := &Job{ID: "j5", Type: JobTypeProcessWebhook, Payload: ProcessWebhookJobPayload{WebhookEventID: 1}.ToMap()}
	require.Error(t, q.processWebhookJob(context.Background(), job))
}
