package models

import "time"

// TaskCategory groups admin work items
type TaskCategory string

const (
	TaskCommissionReview TaskCategory = "CommissionReview"
	TaskPaymentReview    TaskCategory = "PaymentReview"
	TaskWholesaleReview  TaskCategory = "WholesaleReview"
	TaskFulfillment      TaskCategory = "Fulfillment"
)

// TaskStatus is Open until the related action completes
type TaskStatus string

const (
	TaskOpen      TaskStatus = "Open"
	TaskCompleted TaskStatus = "Completed"
)

// Task is an admin work item created as a side effect of other actions
type Task struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Title       string       `gorm:"not null" json:"title"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Category    TaskCategory `gorm:"type:varchar(32);not null;index" json:"category"`
	Status      TaskStatus   `gorm:"type:varchar(16);not null;default:'Open';index" json:"status"`
	Related     RelatedRef   `gorm:"embedded;embeddedPrefix:related_" json:"related"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName specifies the table name for the Task model
func (Task) TableName() string {
	return "tasks"
}
