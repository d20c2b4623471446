package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/keerthivasan-d/pay/internal/pkg/jobqueue"
)

type syncChargeRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

type syncSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
	Name           string `json:"name"`
}

// HandleSyncCharge queues a re-sync of one payment from the gateway. Used to
// reconcile a charge out of band when a webhook delivery was missed.
func HandleSyncCharge(c *fiber.Ctx) error {
	var req syncChargeRequest
	if err := parseBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	payload := jobqueue.SyncChargeJobPayload{PaymentID: req.PaymentID}
	job, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeSyncCharge, payload.ToMap())
	if err != nil {
		log.Errorf("[Billing API] Enqueue charge sync for %s: %v", req.PaymentID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to queue sync")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "job_id": job.ID})
}

// HandleSyncSubscription queues a re-sync of one subscription from the
// gateway.
func HandleSyncSubscription(c *fiber.Ctx) error {
	var req syncSubscriptionRequest
	if err := parseBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	payload := jobqueue.SyncSubscriptionJobPayload{SubscriptionID: req.SubscriptionID, Name: req.Name}
	job, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeSyncSubscription, payload.ToMap())
	if err != nil {
		log.Errorf("[Billing API] Enqueue subscription sync for %s: %v", req.SubscriptionID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to queue sync")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "job_id": job.ID})
}
