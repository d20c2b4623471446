package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeProcessWebhook   JobType = "process_webhook"
	JobTypeSyncCharge       JobType = "sync_charge"
	JobTypeSyncSubscription JobType = "sync_subscription"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ProcessWebhookJobPayload contains the payload for webhook processing jobs.
// The raw event body is already persisted; the job carries only the row id.
type ProcessWebhookJobPayload struct {
	WebhookEventID uint `json:"webhook_event_id"`
}

// ToMap converts the payload to a map for storage
func (p ProcessWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"webhook_event_id": p.WebhookEventID,
	}
}

// FromMap creates a payload from a map
func ProcessWebhookJobPayloadFromMap(data map[string]interface{}) (*ProcessWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ProcessWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// SyncChargeJobPayload contains the payload for deferred charge syncs.
type SyncChargeJobPayload struct {
	PaymentID string `json:"payment_id"`
}

// ToMap converts the payload to a map for storage
func (p SyncChargeJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"payment_id": p.PaymentID,
	}
}

// FromMap creates a payload from a map
func SyncChargeJobPayloadFromMap(data map[string]interface{}) (*SyncChargeJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SyncChargeJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// SyncSubscriptionJobPayload contains the payload for deferred subscription syncs.
type SyncSubscriptionJobPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Name           string `json:"name,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p SyncSubscriptionJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"subscription_id": p.SubscriptionID,
		"name":            p.Name,
	}
}

// FromMap creates a payload from a map
func SyncSubscriptionJobPayloadFromMap(data map[string]interface{}) (*SyncSubscriptionJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SyncSubscriptionJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
