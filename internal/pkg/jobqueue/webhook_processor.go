package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keerthivasan-d/pay/internal/pkg/billing"
)

// The processors need the billing service and the webhook registry; both are
// wired once at startup, before the queue starts.
var (
	procMu    sync.RWMutex
	procSvc   *billing.Service
	procHooks *billing.Webhooks
)

// ConfigureProcessors wires the billing dependencies the job processors use.
func ConfigureProcessors(svc *billing.Service, hooks *billing.Webhooks) {
	procMu.Lock()
	defer procMu.Unlock()
	procSvc = svc
	procHooks = hooks
}

func processorDeps() (*billing.Service, *billing.Webhooks, error) {
	procMu.RLock()
	defer procMu.RUnlock()
	if procSvc == nil || procHooks == nil {
		return nil, nil, fmt.Errorf("billing processors not configured")
	}
	return procSvc, procHooks, nil
}

// processWebhookJob loads a persisted webhook event, dispatches it to the
// registered handlers and records the outcome on the event row. Malformed
// payloads are recorded and dropped; handler failures bubble up so the job
// retry machinery re-runs them.
func (q *Queue) processWebhookJob(ctx context.Context, job *Job) error {
	svc, hooks, err := processorDeps()
	if err != nil {
		return err
	}

	payload, err := ProcessWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid webhook job payload: %w", err)
	}

	event, err := svc.Ledger().GetWebhookEvent(payload.WebhookEventID)
	if err != nil {
		return fmt.Errorf("webhook event %d: %w", payload.WebhookEventID, err)
	}
	if event.ProcessedAt != nil && event.ProcessingError == "" {
		log.Debugf("[JobQueue] Webhook event %d already processed, skipping", event.ID)
		return nil
	}

	parsed, perr := billing.ParseRazorpayEvent([]byte(event.PayloadJSON))
	if perr != nil {
		// A payload that does not parse never will; record and drop.
		log.Errorf("[JobQueue] Webhook event %d unparseable: %v", event.ID, perr)
		return svc.Ledger().MarkWebhookProcessed(event.ID, perr.Error())
	}

	if derr := hooks.Dispatch(ctx, parsed); derr != nil {
		if merr := svc.Ledger().MarkWebhookProcessed(event.ID, derr.Error()); merr != nil {
			log.Errorf("[JobQueue] Webhook event %d: recording failure: %v", event.ID, merr)
		}
		return derr
	}

	return svc.Ledger().MarkWebhookProcessed(event.ID, "")
}

// processSyncChargeJob re-syncs one payment from the gateway.
func (q *Queue) processSyncChargeJob(ctx context.Context, job *Job) error {
	svc, _, err := processorDeps()
	if err != nil {
		return err
	}

	payload, err := SyncChargeJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid sync charge job payload: %w", err)
	}

	_, err = svc.SyncCharge(ctx, payload.PaymentID, nil, billing.DefaultMaxRetries)
	return err
}

// processSyncSubscriptionJob re-syncs one subscription from the gateway.
func (q *Queue) processSyncSubscriptionJob(ctx context.Context, job *Job) error {
	svc, _, err := processorDeps()
	if err != nil {
		return err
	}

	payload, err := SyncSubscriptionJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid sync subscription job payload: %w", err)
	}

	_, err = svc.SyncSubscription(ctx, payload.SubscriptionID, nil, payload.Name, billing.DefaultMaxRetries)
	return err
}

// RetryUnprocessedWebhooks re-enqueues webhook events that were accepted but
// never finished processing, typically after a crash between the HTTP ack and
// the job completing.
func (q *Queue) RetryUnprocessedWebhooks(olderThanMinutes, limit int) error {
	svc, _, err := processorDeps()
	if err != nil {
		return err
	}

	events, err := svc.Ledger().ListUnprocessedWebhookEvents(olderThanMinutes, limit)
	if err != nil {
		return fmt.Errorf("listing unprocessed webhook events: %w", err)
	}
	for _, event := range events {
		payload := ProcessWebhookJobPayload{WebhookEventID: event.ID}
		if _, err := q.EnqueueJob(JobTypeProcessWebhook, payload.ToMap()); err != nil {
			log.Errorf("[JobQueue] Re-enqueue webhook event %d: %v", event.ID, err)
			continue
		}
		log.Infof("[JobQueue] Re-enqueued stale webhook event %d (%s)", event.ID, event.EventType)
	}
	return nil
}
