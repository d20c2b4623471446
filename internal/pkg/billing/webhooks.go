package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// Event is one verified webhook delivery: a type discriminator plus whichever
// entity the payload carried. Handlers must tolerate deliveries where the
// expected entity is missing and treat them as no-ops.
type Event struct {
	Name         string
	Contains     []string
	CreatedAt    int64
	Payment      *Payment
	Subscription *RemoteSubscription
}

// Handler processes one webhook event.
type Handler func(ctx context.Context, event *Event) error

// Webhooks routes events to the handlers subscribed to their type, in the
// order they were subscribed. Unrouted event types are acknowledged and
// skipped.
type Webhooks struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewWebhooks creates an empty webhook registry.
func NewWebhooks() *Webhooks {
	return &Webhooks{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event type.
func (w *Webhooks) Subscribe(eventType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[eventType] = append(w.handlers[eventType], h)
}

// Handles reports whether any handler is subscribed to the event type.
func (w *Webhooks) Handles(eventType string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers[eventType]) > 0
}

// Dispatch runs every handler subscribed to the event's type. The first
// handler error stops dispatch and is returned.
func (w *Webhooks) Dispatch(ctx context.Context, event *Event) error {
	w.mu.RLock()
	hs := w.handlers[event.Name]
	w.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

type razorpayEventEnvelope struct {
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	CreatedAt int64    `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity *razorpayPayment `json:"entity"`
		} `json:"payment"`
		Subscription *struct {
			Entity *razorpaySubscription `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// ParseRazorpayEvent decodes a raw webhook body into an Event. Entities the
// payload does not carry stay nil.
func ParseRazorpayEvent(payload []byte) (*Event, error) {
	var raw razorpayEventEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("webhook payload missing event type")
	}

	event := &Event{Name: raw.Event, Contains: raw.Contains, CreatedAt: raw.CreatedAt}
	if raw.Payload.Payment != nil && raw.Payload.Payment.Entity != nil {
		event.Payment = paymentFromRazorpay(raw.Payload.Payment.Entity, nil)
	}
	if raw.Payload.Subscription != nil && raw.Payload.Subscription.Entity != nil {
		event.Subscription = subscriptionFromRazorpay(raw.Payload.Subscription.Entity)
	}
	return event, nil
}

// MailFunc delivers one notification email.
type MailFunc func(to, subject, body string) error

// ConfigureRazorpayWebhooks wires the named handlers this service listens to.
// Webhook entities are stale by definition, so every handler re-syncs from
// the gateway by id rather than trusting the embedded entity. sendMail may be
// nil to disable notifications.
func ConfigureRazorpayWebhooks(svc *Service, sendMail MailFunc) *Webhooks {
	w := NewWebhooks()

	// payment.captured covers one-off purchases as well; invoices alone only
	// cover subscription billing.
	w.Subscribe("payment.captured", paymentHandler(svc, sendMail, "Payment receipt"))
	w.Subscribe("payment.failed", paymentHandler(svc, sendMail, "Payment failed"))

	for _, name := range []string{
		"subscription.authenticated",
		"subscription.activated",
		"subscription.charged",
		"subscription.updated",
		"subscription.paused",
		"subscription.resumed",
		"subscription.halted",
		"subscription.cancelled",
		"subscription.completed",
	} {
		w.Subscribe(name, subscriptionHandler(svc))
	}
	return w
}

func paymentHandler(svc *Service, sendMail MailFunc, subject string) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.Payment == nil {
			return nil
		}
		charge, err := svc.SyncCharge(ctx, event.Payment.ID, nil, DefaultMaxRetries)
		if err != nil {
			return err
		}
		if charge == nil {
			return nil
		}
		if _, err := svc.SyncPaymentMethod(ctx, event.Payment.ID, nil); err != nil {
			log.Errorf("[Billing] payment method sync for %s: %v", event.Payment.ID, err)
		}
		if sendMail != nil {
			if customer, err := svc.Ledger().GetCustomer(charge.CustomerID); err == nil && customer.Email != "" {
				body := fmt.Sprintf("Charge %s: %d.%02d %s",
					charge.ProcessorID, charge.Amount/100, charge.Amount%100, charge.Currency)
				if merr := sendMail(customer.Email, subject, body); merr != nil {
					log.Errorf("[Billing] mail for charge %s: %v", charge.ProcessorID, merr)
				}
			}
		}
		return nil
	}
}

func subscriptionHandler(svc *Service) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.Subscription == nil {
			return nil
		}
		_, err := svc.SyncSubscription(ctx, event.Subscription.ID, nil, "", DefaultMaxRetries)
		return err
	}
}
