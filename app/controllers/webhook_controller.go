package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/keerthivasan-d/pay/app/models"
	"github.com/keerthivasan-d/pay/internal/pkg/billing"
	"github.com/keerthivasan-d/pay/internal/pkg/env"
	"github.com/keerthivasan-d/pay/internal/pkg/jobqueue"
)

// HandleRazorpayWebhook ingests one webhook delivery: verify the signature
// over the raw body, persist the event exactly once and hand processing to
// the job queue. Duplicate deliveries are acknowledged without reprocessing.
func HandleRazorpayWebhook(c *fiber.Ctx) error {
	svc := getBillingService()
	if svc == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Billing service unavailable")
	}

	secret := env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")
	if secret == "" {
		// Accepting unauthenticated deliveries is worse than dropping them.
		log.Error("[Webhook] RAZORPAY_WEBHOOK_SECRET not configured, rejecting delivery")
		return errorJSON(c, fiber.StatusServiceUnavailable, "unavailable", "Webhook verification not configured")
	}

	body := c.Body()
	signature := c.Get("X-Razorpay-Signature")
	if !billing.VerifyRazorpayWebhookSignature(body, signature, secret) {
		log.Warnf("[Webhook] Rejected delivery with bad signature (event id %q)", c.Get("X-Razorpay-Event-Id"))
		return errorJSON(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
	}

	parsed, err := billing.ParseRazorpayEvent(body)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_payload", "Webhook payload could not be parsed")
	}

	eventID := c.Get("X-Razorpay-Event-Id")
	if eventID == "" {
		// Old API versions omit the header; fall back to a generated id so the
		// event is still recorded (without cross-delivery dedup).
		eventID = uuid.New().String()
	}

	record := &models.WebhookEvent{
		Processor:        models.ProcessorRazorpay,
		ProcessorEventID: eventID,
		EventType:        parsed.Name,
		PayloadJSON:      string(body),
		SignatureValid:   true,
	}
	created, stored, err := svc.Ledger().CreateWebhookEventIfNotExists(record)
	if err != nil {
		log.Errorf("[Webhook] Recording event %s failed: %v", eventID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record webhook event")
	}
	if !created {
		log.Debugf("[Webhook] Duplicate delivery of event %s acknowledged", eventID)
		return c.JSON(fiber.Map{"status": "duplicate"})
	}

	payload := jobqueue.ProcessWebhookJobPayload{WebhookEventID: stored.ID}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeProcessWebhook, payload.ToMap()); err != nil {
		// The event row is durable; the retry worker picks up stranded events.
		log.Errorf("[Webhook] Enqueue for event %d failed: %v", stored.ID, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleCCAvenueResponse ingests the gateway's transaction response POST. The
// response arrives as form fields; the charge is reconciled inline because the
// gateway expects the final redirect from this request.
func HandleCCAvenueResponse(c *fiber.Ctx) error {
	svc := getBillingService()
	if svc == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Billing service unavailable")
	}

	resp := billing.CCAvenueResponse{}
	c.Context().PostArgs().VisitAll(func(key, value []byte) {
		resp[string(key)] = string(value)
	})
	if resp.TrackingID() == "" {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_payload", "Transaction response missing tracking_id")
	}

	charge, err := svc.SyncCCAvenueCharge(c.UserContext(), resp, billing.DefaultMaxRetries)
	if err != nil {
		log.Errorf("[Webhook] CCAvenue charge %s sync failed: %v", resp.TrackingID(), err)
		return errorJSON(c, fiber.StatusInternalServerError, "sync_failed", "Transaction could not be reconciled")
	}
	if charge == nil {
		// Unknown customer reference; acknowledge and drop.
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	return c.JSON(fiber.Map{
		"status":    "ok",
		"charge_id": charge.ID,
		"order_id":  resp.OrderID(),
	})
}
