package models

// WorkItemType represents the type of background work to execute.
type WorkItemType string

const (
	// WorkItemTypeProjectConfigured marks a project as configured after its
	// first event arrives.
	WorkItemTypeProjectConfigured WorkItemType = "project_configured"
	// WorkItemTypeEventNotification delivers a project email notification.
	WorkItemTypeEventNotification WorkItemType = "event_notification"
	// WorkItemTypeWebhookDelivery delivers a webhook payload.
	WorkItemTypeWebhookDelivery WorkItemType = "webhook_delivery"
	// WorkItemTypeRetentionSweep deletes events past their retention window.
	WorkItemTypeRetentionSweep WorkItemType = "retention_sweep"
)

// WorkItemStatus represents the current status of a work item.
type WorkItemStatus string

const (
	// WorkItemStatusPending indicates the item is waiting to be executed.
	WorkItemStatusPending WorkItemStatus = "pending"
	// WorkItemStatusRunning indicates the item is currently executing.
	WorkItemStatusRunning WorkItemStatus = "running"
	// WorkItemStatusCompleted indicates the item completed successfully.
	WorkItemStatusCompleted WorkItemStatus = "completed"
	// WorkItemStatusFailed indicates the item exhausted its attempts.
	WorkItemStatusFailed WorkItemStatus = "failed"
)

// WorkItem is a durable queue record for asynchronous background work.
// Delivery semantics (retry, backoff, dead-lettering) belong to the queue;
// the pipeline only enqueues.
type WorkItem struct {
	BaseModel

	// Type indicates what kind of work this is.
	Type WorkItemType `gorm:"not null;size:50;index" json:"type"`

	// DedupKey deduplicates pending items: enqueueing a second item with the
	// same type and dedup key while one is pending is a no-op.
	DedupKey string `gorm:"size:255;index" json:"dedup_key,omitempty"`

	// Payload is the JSON-encoded typed work payload.
	Payload string `gorm:"type:text" json:"payload,omitempty"`

	// Status indicates the current status of the item.
	Status WorkItemStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// AttemptCount is the number of times this item has been attempted.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// MaxAttempts is the maximum number of delivery attempts.
	MaxAttempts int `gorm:"default:3" json:"max_attempts"`

	// NextRunAt delays execution (used for retry backoff).
	NextRunAt *Time `gorm:"index" json:"next_run_at,omitempty"`

	// LastError contains the error message from the last failed attempt.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// Priority determines execution order (higher runs first).
	Priority int `gorm:"default:0;index" json:"priority"`

	// LockedBy is the worker id that has locked this item for execution.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`

	// LockedAt is the timestamp when the item was locked.
	LockedAt *Time `json:"locked_at,omitempty"`

	// CompletedAt is the timestamp when the item finished.
	CompletedAt *Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for WorkItem.
func (WorkItem) TableName() string {
	return "work_items"
}

// Validate checks that the work item is valid.
func (w *WorkItem) Validate() error {
	if w.Type == "" {
		return ErrWorkItemTypeRequired
	}
	return nil
}

// IsFinished returns true if the item has completed or failed permanently.
func (w *WorkItem) IsFinished() bool {
	return w.Status == WorkItemStatusCompleted || w.Status == WorkItemStatusFailed
}

// CanRetry returns true if a failed attempt may be retried.
func (w *WorkItem) CanRetry() bool {
	return w.AttemptCount < w.MaxAttempts
}

// MarkRunning marks the item as locked by the given worker.
func (w *WorkItem) MarkRunning(workerID string) {
	w.Status = WorkItemStatusRunning
	now := Now()
	w.LockedBy = workerID
	w.LockedAt = &now
	w.AttemptCount++
	w.LastError = ""
}
