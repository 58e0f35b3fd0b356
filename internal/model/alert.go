package model

import (
	"time"

	"github.com/google/uuid"
)

type AlertState string

const (
	AlertStatePendingDelivery AlertState = "pending_delivery"
	AlertStateDelivered       AlertState = "delivered"
	AlertStateAcknowledged    AlertState = "acknowledged"
	AlertStateDeliveryFailed  AlertState = "delivery_failed"
)

// Alert tracks the notification obligation for one critical result.
// At most one non-acknowledged alert exists per result at a time.
type Alert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ResultID       uuid.UUID  `db:"result_id" json:"result_id"`
	OrderID        uuid.UUID  `db:"order_id" json:"order_id"`
	TestCode       string     `db:"test_code" json:"test_code"`
	RecipientID    string     `db:"recipient_id" json:"recipient_id"`
	State          AlertState `db:"state" json:"state"`
	Attempts       int        `db:"attempts" json:"attempts"`
	NextAttemptAt  *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastError      *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
}

// Active reports whether the alert still demands acknowledgment.
func (a *Alert) Active() bool {
	return a.State != AlertStateAcknowledged
}

type AcknowledgeAlertRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type AlertFilters struct {
	State       AlertState
	RecipientID string
	OrderID     uuid.UUID
	Pagination
}
