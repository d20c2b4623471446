package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keerthivasan-d/pay/app/models"
)

func TestCancelOnTrialEndsAtTrialEnd(t *testing.T) {
	ledger := newMemLedger()
	gateway := newFakeGateway()
	svc := newTestService(ledger, gateway)
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	trialEnd := time.Now().UTC().Add(5 * 24 * time.Hour).Truncate(time.Second)
	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_trial",
		Name:        "default",
		Status:      models.SubscriptionStatusTrialing,
		TrialEndsAt: timep(trialEnd),
	})

	updated, err := svc.Cancel(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, gateway.cancelCalls, 1)
	assert.True(t, gateway.cancelCalls[0], "cancel must request end-of-cycle")
	require.NotNil(t, updated.EndsAt)
	assert.True(t, updated.EndsAt.Equal(trialEnd))
	// Status is untouched until the gateway's webhook confirms.
	assert.Equal(t, models.SubscriptionStatusTrialing, updated.Status)
}

func TestCancelUsesRemoteCycleEnd(t *testing.T) {
	ledger := newMemLedger()
	gateway := newFakeGateway()
	svc := newTestService(ledger, gateway)
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	cycleEnd := time.Now().Add(20 * 24 * time.Hour).Unix()
	gateway.cancelResult = &RemoteSubscription{
		ID:         "sub_active",
		Status:     "cancelled",
		CurrentEnd: i64p(cycleEnd),
	}
	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_active",
		Name:        "default",
		Status:      models.SubscriptionStatusActive,
	})

	updated, err := svc.Cancel(context.Background(), sub)
	require.NoError(t, err)
	require.NotNil(t, updated.EndsAt)
	assert.Equal(t, cycleEnd, updated.EndsAt.Unix())
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
}

func TestCancelGatewayFailureLeavesRowUntouched(t *testing.T) {
	ledger := newMemLedger()
	gateway := newFakeGateway()
	svc := newTestService(ledger, gateway)
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")
	gateway.cancelErr = &GatewayError{Processor: "razorpay", Status: 502, Message: "upstream down"}

	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_1",
		Name:        "default",
		Status:      models.SubscriptionStatusActive,
	})

	_, err := svc.Cancel(context.Background(), sub)
	require.ErrorIs(t, err, ErrGateway)

	stored, err := ledger.GetSubscription(sub.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EndsAt)
	assert.Equal(t, models.SubscriptionStatusActive, stored.Status)
}

func TestCancelNow(t *testing.T) {
	ledger := newMemLedger()
	gateway := newFakeGateway()
	svc := newTestService(ledger, gateway)
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_1",
		Name:        "default",
		Status:      models.SubscriptionStatusTrialing,
		TrialEndsAt: timep(time.Now().UTC().Add(48 * time.Hour)),
	})

	updated, err := svc.CancelNow(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, gateway.cancelCalls, 1)
	assert.False(t, gateway.cancelCalls[0], "cancel-now must request immediate cancellation")
	assert.Equal(t, models.SubscriptionStatusCanceled, updated.Status)
	assert.Nil(t, updated.TrialEndsAt)
	require.NotNil(t, updated.EndsAt)
	assert.WithinDuration(t, time.Now().UTC(), *updated.EndsAt, 5*time.Second)
	assert.False(t, updated.OnGracePeriod())
}

func TestPauseGuardsStatus(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	canceled := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_canceled",
		Name:        "default",
		Status:      models.SubscriptionStatusCanceled,
	})
	_, err := svc.Pause(context.Background(), canceled)
	require.ErrorIs(t, err, ErrInvalidTransition)

	active := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_active",
		Name:        "default",
		Status:      models.SubscriptionStatusActive,
	})
	updated, err := svc.Pause(context.Background(), active)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPaused, updated.Status)
	require.NotNil(t, updated.TrialEndsAt)
}

func TestResumePausedSubscription(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_paused",
		Name:        "default",
		Status:      models.SubscriptionStatusPaused,
	})

	updated, err := svc.Resume(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
	assert.Nil(t, updated.EndsAt)
}

func TestResumeWithinGracePeriod(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	endsAt := time.Now().UTC().Add(7 * 24 * time.Hour)
	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_grace",
		Name:        "default",
		Status:      models.SubscriptionStatusCanceled,
		EndsAt:      timep(endsAt),
	})
	require.True(t, sub.OnGracePeriod())

	updated, err := svc.Resume(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
	assert.Nil(t, updated.EndsAt)
}

func TestResumeRejectsExpiredSubscription(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	endsAt := time.Now().UTC().Add(-time.Hour)
	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_expired",
		Name:        "default",
		Status:      models.SubscriptionStatusCanceled,
		EndsAt:      timep(endsAt),
	})

	_, err := svc.Resume(context.Background(), sub)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// The rejection must not touch the stored row.
	stored, err := ledger.GetSubscription(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, stored.Status)
	require.NotNil(t, stored.EndsAt)
	assert.True(t, stored.EndsAt.Equal(endsAt))
}

func TestChangeQuantity(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_1",
		Name:        "default",
		Status:      models.SubscriptionStatusActive,
		Quantity:    1,
	})

	updated, err := svc.ChangeQuantity(context.Background(), sub, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
}

func TestSwapClearsScheduledCancellation(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:    customer.ID,
		ProcessorID:   "sub_1",
		Name:          "default",
		ProcessorPlan: "plan_old",
		Status:        models.SubscriptionStatusCanceled,
		EndsAt:        timep(time.Now().UTC().Add(24 * time.Hour)),
	})

	updated, err := svc.Swap(context.Background(), sub, "plan_new")
	require.NoError(t, err)
	assert.Equal(t, "plan_new", updated.ProcessorPlan)
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
	assert.Nil(t, updated.EndsAt)
}

func TestRetryFailedPayment(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, newFakeGateway())
	customer := seedCustomer(t, ledger, models.ProcessorRazorpay, "cust_001")

	sub := seedSubscription(t, ledger, &models.Subscription{
		CustomerID:  customer.ID,
		ProcessorID: "sub_1",
		Name:        "default",
		Status:      models.SubscriptionStatusPastDue,
	})

	updated, err := svc.RetryFailedPayment(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
}
