package controllers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/keerthivasan-d/pay/app/models"
	"github.com/keerthivasan-d/pay/internal/pkg/billing"
)

type subscribeRequest struct {
	OwnerType  string `json:"owner_type" validate:"required"`
	OwnerID    uint   `json:"owner_id" validate:"required"`
	Plan       string `json:"plan" validate:"required"`
	Name       string `json:"name"`
	Email      string `json:"email" validate:"omitempty,email"`
	Contact    string `json:"contact"`
	TotalCount int    `json:"total_count" validate:"omitempty,min=1"`
}

type swapRequest struct {
	Plan string `json:"plan" validate:"required"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return err
	}
	return validator.New().Struct(out)
}

// HandleSubscribe creates the gateway subscription for an owner, lazily
// creating the gateway customer on first use, and returns the reconciled
// local row.
func HandleSubscribe(c *fiber.Ctx) error {
	svc := getBillingService()
	if svc == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Billing service unavailable")
	}

	var req subscribeRequest
	if err := parseBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.UserContext()
	customer, err := svc.GetOrCreateCustomer(ctx, req.OwnerType, req.OwnerID, req.Name, req.Email, req.Contact)
	if err != nil {
		log.Errorf("[Billing API] Customer for %s/%d: %v", req.OwnerType, req.OwnerID, err)
		return billingError(c, err)
	}

	sub, err := svc.Subscribe(ctx, customer, req.Plan, req.Name, req.TotalCount)
	if err != nil {
		log.Errorf("[Billing API] Subscribe %s to %s: %v", customer.ProcessorID, req.Plan, err)
		return billingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleGetSubscription returns one local subscription row.
func HandleGetSubscription(c *fiber.Ctx) error {
	svc := getBillingService()
	if svc == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Billing service unavailable")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", "Invalid subscription id")
	}
	sub, err := svc.Ledger().GetSubscription(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Subscription not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}
	return c.JSON(sub)
}

// HandleCancelSubscription schedules cancellation at the end of the current
// billing cycle.
func HandleCancelSubscription(c *fiber.Ctx) error {
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.Cancel(c.UserContext(), sub)
	})
}

// HandleCancelSubscriptionNow cancels immediately with no grace period.
func HandleCancelSubscriptionNow(c *fiber.Ctx) error {
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.CancelNow(c.UserContext(), sub)
	})
}

// HandlePauseSubscription pauses an active or trialing subscription.
func HandlePauseSubscription(c *fiber.Ctx) error {
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.Pause(c.UserContext(), sub)
	})
}

// HandleResumeSubscription resumes a paused or grace-period subscription.
func HandleResumeSubscription(c *fiber.Ctx) error {
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.Resume(c.UserContext(), sub)
	})
}

// HandleSwapSubscription moves the subscription to another plan.
func HandleSwapSubscription(c *fiber.Ctx) error {
	var req swapRequest
	if err := parseBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.Swap(c.UserContext(), sub, req.Plan)
	})
}

// HandleChangeSubscriptionQuantity updates the seat count.
func HandleChangeSubscriptionQuantity(c *fiber.Ctx) error {
	var req quantityRequest
	if err := parseBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.ChangeQuantity(c.UserContext(), sub, req.Quantity)
	})
}

// HandleRetrySubscriptionPayment flips a past-due subscription back to active
// after the outstanding payment was retried.
func HandleRetrySubscriptionPayment(c *fiber.Ctx) error {
	return lifecycleAction(c, func(svc *billing.Service, sub *models.Subscription) (*models.Subscription, error) {
		return svc.RetryFailedPayment(c.UserContext(), sub)
	})
}

func lifecycleAction(c *fiber.Ctx, action func(*billing.Service, *models.Subscription) (*models.Subscription, error)) error {
	svc := getBillingService()
	if svc == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Billing service unavailable")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", "Invalid subscription id")
	}
	sub, err := svc.Ledger().GetSubscription(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Subscription not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}

	updated, err := action(svc, sub)
	if err != nil {
		log.Errorf("[Billing API] Lifecycle action on subscription %d: %v", sub.ID, err)
		return billingError(c, err)
	}
	return c.JSON(updated)
}

// billingError maps domain errors onto HTTP statuses.
func billingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrInvalidTransition):
		return errorJSON(c, fiber.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, billing.ErrGateway):
		return errorJSON(c, fiber.StatusBadGateway, "gateway_error", err.Error())
	case errors.Is(err, billing.ErrSyncFailed):
		return errorJSON(c, fiber.StatusInternalServerError, "sync_failed", err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", err.Error())
	}
}
