package billing

import (
	"context"
	"time"

	"github.com/keerthivasan-d/pay/app/models"
)

// Lifecycle operations mutate the local Subscription under its row lock.
// Operations that need the gateway's confirmation (Cancel, CancelNow) call
// out first and leave local state untouched when the remote call fails.

// Cancel schedules cancellation at the end of the current billing cycle. The
// subscription stays in its current status and keeps access until EndsAt: the
// trial end when still trialing, otherwise the end of the cycle the gateway
// reports back.
func (s *Service) Cancel(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	remote, err := s.gateway.CancelSubscription(ctx, sub.ProcessorID, true)
	if err != nil {
		return nil, err
	}

	endsAt := time.Now().UTC()
	if sub.OnTrial() {
		endsAt = *sub.TrialEndsAt
	} else if remote.CurrentEnd != nil {
		endsAt = time.Unix(*remote.CurrentEnd, 0).UTC()
	}

	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.EndsAt = &endsAt
		return nil
	})
}

// CancelNow cancels immediately: the gateway stops the subscription and the
// local row flips to canceled with no grace period and no outstanding trial.
func (s *Service) CancelNow(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if _, err := s.gateway.CancelSubscription(ctx, sub.ProcessorID, false); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.Status = models.SubscriptionStatusCanceled
		row.EndsAt = &now
		row.TrialEndsAt = nil
		return nil
	})
}

// Pause pauses an active or trialing subscription. Local bookkeeping only;
// the gateway keeps billing state unchanged.
func (s *Service) Pause(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	_ = ctx
	switch sub.Status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
	default:
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.Status = models.SubscriptionStatusPaused
		row.TrialEndsAt = &now
		return nil
	})
}

// Resume clears a paused or grace-period subscription back to active. It
// fails with ErrInvalidTransition, mutating nothing, when the subscription is
// neither paused nor inside its grace period.
func (s *Service) Resume(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	_ = ctx
	if !sub.Paused() && !sub.OnGracePeriod() {
		return nil, ErrInvalidTransition
	}

	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.Status = models.SubscriptionStatusActive
		row.EndsAt = nil
		return nil
	})
}

// ChangeQuantity updates the seat count. Local bookkeeping only.
func (s *Service) ChangeQuantity(ctx context.Context, sub *models.Subscription, quantity int) (*models.Subscription, error) {
	_ = ctx
	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.Quantity = quantity
		return nil
	})
}

// Swap moves the subscription to a new plan and reactivates it, clearing any
// scheduled cancellation. Local bookkeeping only: the remote plan is not
// changed here, so the gateway's record diverges until the next sync.
func (s *Service) Swap(ctx context.Context, sub *models.Subscription, plan string) (*models.Subscription, error) {
	_ = ctx
	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.ProcessorPlan = plan
		row.EndsAt = nil
		row.Status = models.SubscriptionStatusActive
		return nil
	})
}

// RetryFailedPayment flips a past-due subscription back to active after the
// outstanding payment has been retried out of band.
func (s *Service) RetryFailedPayment(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	_ = ctx
	return s.ledger.UpdateSubscriptionLocked(sub.ID, func(row *models.Subscription) error {
		row.Status = models.SubscriptionStatusActive
		return nil
	})
}
