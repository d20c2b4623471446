package models

import "time"

// Payment processor constants used across pay models.
const (
	ProcessorRazorpay = "razorpay"
	ProcessorCcavenue = "ccavenue"
)

// Customer links a local owner (user, team, account - anything with an id) to
// its identity at one payment processor. One row per (processor, processor_id).
type Customer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"not null;index:idx_pay_customers_owner,priority:2" json:"owner_id"`
	OwnerType   string    `gorm:"type:varchar(100);not null;default:'';index:idx_pay_customers_owner,priority:1" json:"owner_type"`
	Processor   string    `gorm:"type:varchar(20);not null;index:ux_pay_customers_processor_id,unique,priority:1" json:"processor"`
	ProcessorID string    `gorm:"type:varchar(191);not null;index:ux_pay_customers_processor_id,unique,priority:2" json:"processor_id"`
	Email       string    `gorm:"type:varchar(200);default:''" json:"email"`
	Name        string    `gorm:"type:varchar(200);default:''" json:"name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Charges        []Charge        `gorm:"foreignKey:CustomerID" json:"-"`
	Subscriptions  []Subscription  `gorm:"foreignKey:CustomerID" json:"-"`
	PaymentMethods []PaymentMethod `gorm:"foreignKey:CustomerID" json:"-"`
}
