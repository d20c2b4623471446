package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusPaused   = "paused"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription mirrors a processor subscription. At most one row exists per
// (customer, processor_id). Cancellation is a status/timestamp mutation, never
// a delete: a non-nil EndsAt in the future means the subscription is in its
// grace period even after Status flips to canceled.
type Subscription struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CustomerID  uint   `gorm:"not null;index:ux_pay_subscriptions_customer_processor,unique,priority:1" json:"customer_id"`
	ProcessorID string `gorm:"type:varchar(191);not null;index:ux_pay_subscriptions_customer_processor,unique,priority:2" json:"processor_id"`

	Name          string `gorm:"type:varchar(191);not null;default:''" json:"name"`
	ProcessorPlan string `gorm:"type:varchar(191);not null;default:'';index" json:"processor_plan"`
	Quantity      int    `gorm:"not null;default:1" json:"quantity"`
	Status        string `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`

	CurrentPeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialEndsAt        *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	EndsAt             *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`

	Metadata map[string]string `gorm:"serializer:json;type:longtext" json:"metadata"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Active reports whether the subscription currently entitles access.
func (s *Subscription) Active() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	}
	return s.OnGracePeriod()
}

// Canceled reports whether the subscription has been canceled.
func (s *Subscription) Canceled() bool {
	return s.Status == SubscriptionStatusCanceled
}

// Paused reports whether the subscription is paused.
func (s *Subscription) Paused() bool {
	return s.Status == SubscriptionStatusPaused
}

// OnTrial reports whether the subscription is inside its trial window.
func (s *Subscription) OnTrial() bool {
	return s.TrialEndsAt != nil && time.Now().Before(*s.TrialEndsAt)
}

// OnGracePeriod reports whether a canceled subscription still entitles access
// because its scheduled end has not passed yet.
func (s *Subscription) OnGracePeriod() bool {
	return s.Canceled() && s.EndsAt != nil && time.Now().Before(*s.EndsAt)
}
