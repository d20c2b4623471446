package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keerthivasan-d/pay/app/models"
)

// Ledger provides the durable storage operations used by the sync engines and
// the lifecycle controller. Lookups by unique key return
// gorm.ErrRecordNotFound when no row exists; creates surface the storage
// layer's uniqueness violation unchanged so the engines can retry.
type Ledger interface {
	FindCustomer(processor, processorID string) (*models.Customer, error)
	FindCustomerByOwner(processor, ownerType string, ownerID uint) (*models.Customer, error)
	GetCustomer(id uint) (*models.Customer, error)
	CreateCustomer(c *models.Customer) error

	FindCharge(customerID uint, processorID string) (*models.Charge, error)
	CreateCharge(ch *models.Charge) error
	// UpdateChargeLocked re-reads the charge under an exclusive row lock,
	// applies the mutation and writes it back in the same transaction.
	UpdateChargeLocked(id uint, apply func(*models.Charge) error) (*models.Charge, error)

	FindSubscription(customerID uint, processorID string) (*models.Subscription, error)
	GetSubscription(id uint) (*models.Subscription, error)
	CreateSubscription(s *models.Subscription) error
	UpdateSubscriptionLocked(id uint, apply func(*models.Subscription) error) (*models.Subscription, error)

	DefaultPaymentMethod(customerID uint) (*models.PaymentMethod, error)
	// SaveDefaultPaymentMethod is the single call site for default-method
	// writes: it unsets the customer's prior default in the same transaction.
	SaveDefaultPaymentMethod(pm *models.PaymentMethod) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetWebhookEvent(id uint) (*models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	// ListUnprocessedWebhookEvents returns events accepted at least
	// olderThanMinutes ago that never finished processing.
	ListUnprocessedWebhookEvents(olderThanMinutes, limit int) ([]models.WebhookEvent, error)
}

type gormLedger struct {
	db *gorm.DB
}

// NewLedger creates a ledger backed by GORM.
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) FindCustomer(processor, processorID string) (*models.Customer, error) {
	var c models.Customer
	err := l.db.Where("processor = ? AND processor_id = ?", processor, processorID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (l *gormLedger) GetCustomer(id uint) (*models.Customer, error) {
	var c models.Customer
	if err := l.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (l *gormLedger) FindCustomerByOwner(processor, ownerType string, ownerID uint) (*models.Customer, error) {
	var c models.Customer
	err := l.db.Where("processor = ? AND owner_type = ? AND owner_id = ?", processor, ownerType, ownerID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (l *gormLedger) CreateCustomer(c *models.Customer) error {
	return l.db.Create(c).Error
}

func (l *gormLedger) FindCharge(customerID uint, processorID string) (*models.Charge, error) {
	var ch models.Charge
	err := l.db.Where("customer_id = ? AND processor_id = ?", customerID, processorID).First(&ch).Error
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (l *gormLedger) CreateCharge(ch *models.Charge) error {
	return l.db.Create(ch).Error
}

func (l *gormLedger) UpdateChargeLocked(id uint, apply func(*models.Charge) error) (*models.Charge, error) {
	var ch models.Charge
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ch, id).Error; err != nil {
			return err
		}
		if err := apply(&ch); err != nil {
			return err
		}
		return tx.Save(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (l *gormLedger) FindSubscription(customerID uint, processorID string) (*models.Subscription, error) {
	var s models.Subscription
	err := l.db.Where("customer_id = ? AND processor_id = ?", customerID, processorID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *gormLedger) GetSubscription(id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := l.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *gormLedger) CreateSubscription(s *models.Subscription) error {
	return l.db.Create(s).Error
}

func (l *gormLedger) UpdateSubscriptionLocked(id uint, apply func(*models.Subscription) error) (*models.Subscription, error) {
	var s models.Subscription
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
			return err
		}
		if err := apply(&s); err != nil {
			return err
		}
		return tx.Save(&s).Error
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *gormLedger) DefaultPaymentMethod(customerID uint) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := l.db.Where("customer_id = ? AND `default` = ?", customerID, true).First(&pm).Error
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (l *gormLedger) SaveDefaultPaymentMethod(pm *models.PaymentMethod) error {
	pm.Default = true
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentMethod{}).
			Where("customer_id = ? AND id != ?", pm.CustomerID, pm.ID).
			Update("default", false).Error; err != nil {
			return err
		}
		return tx.Save(pm).Error
	})
}

func (l *gormLedger) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := l.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "processor"},
			{Name: "processor_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := l.db.Where("processor = ? AND processor_event_id = ?", event.Processor, event.ProcessorEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (l *gormLedger) GetWebhookEvent(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := l.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (l *gormLedger) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return l.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (l *gormLedger) ListUnprocessedWebhookEvents(olderThanMinutes, limit int) ([]models.WebhookEvent, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)
	var events []models.WebhookEvent
	err := l.db.Where("processed_at IS NULL AND created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
