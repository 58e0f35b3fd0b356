package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type OrderPriority string

const (
	OrderPriorityRoutine OrderPriority = "routine"
	OrderPriorityUrgent  OrderPriority = "urgent"
	OrderPriorityStat    OrderPriority = "stat"
)

// orderTransitions is the status graph. Terminal states map to an
// empty slice. The in_progress -> completed edge is only ever taken by
// the result ingestor's completion check.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// CanTransition reports whether the status graph permits moving from
// one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// priorityRank backs the worklist ordering contract: stat ahead of
// urgent ahead of routine.
var priorityRank = map[OrderPriority]int{
	OrderPriorityRoutine: 0,
	OrderPriorityUrgent:  1,
	OrderPriorityStat:    2,
}

func (p OrderPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

func (p OrderPriority) Rank() int {
	return priorityRank[p]
}

type Order struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	PatientID       string         `db:"patient_id" json:"patient_id"`
	ProviderID      string         `db:"provider_id" json:"provider_id"`
	OrderedTests    pq.StringArray `db:"ordered_tests" json:"ordered_tests"`
	Priority        OrderPriority  `db:"priority" json:"priority"`
	ClinicalInfo    string         `db:"clinical_info" json:"clinical_info,omitempty"`
	DiagnosisCodes  pq.StringArray `db:"diagnosis_codes" json:"diagnosis_codes,omitempty"`
	Status          OrderStatus    `db:"status" json:"status"`
	Version         int64          `db:"version" json:"version"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	StatusChangedAt time.Time      `db:"status_changed_at" json:"status_changed_at"`
}

// HasTest reports whether code is among the order's tests.
func (o *Order) HasTest(code string) bool {
	for _, t := range o.OrderedTests {
		if t == code {
			return true
		}
	}
	return false
}

// Open reports whether the order still accepts results.
func (o *Order) Open() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusInProgress
}

type CreateOrderRequest struct {
	PatientID      string   `json:"patient_id" binding:"required"`
	ProviderID     string   `json:"provider_id" binding:"required"`
	Tests          []string `json:"tests" binding:"required,min=1,dive,testcode"`
	Priority       string   `json:"priority" binding:"required,labpriority"`
	ClinicalInfo   string   `json:"clinical_info" binding:"max=4000"`
	DiagnosisCodes []string `json:"diagnosis_codes"`
}

type TransitionOrderRequest struct {
	ExpectedVersion int64  `json:"expected_version" binding:"required,min=1"`
	Status          string `json:"status" binding:"required,labstatus"`
}

type OrderFilters struct {
	Status     OrderStatus
	PatientID  string
	ProviderID string
	Priority   OrderPriority
	Pagination
}

// OrderWithResults is the read model returned by order detail lookups.
type OrderWithResults struct {
	Order
	Results []*Result `json:"results"`
}
