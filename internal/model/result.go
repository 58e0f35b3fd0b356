package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is one measurement for one test on one order. The
// (order_id, test_code) pair is unique; a resubmission updates the
// existing row in place.
type Result struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	TestCode       string    `db:"test_code" json:"test_code"`
	PatientID      string    `db:"patient_id" json:"patient_id"`
	Value          string    `db:"value" json:"value"`
	Unit           string    `db:"unit" json:"unit,omitempty"`
	IsCritical     bool      `db:"is_critical" json:"is_critical"`
	CatalogVersion int       `db:"catalog_version" json:"catalog_version"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	CompletedAt    time.Time `db:"completed_at" json:"completed_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type SubmitResultRequest struct {
	TestCode string `json:"test_code" binding:"required,testcode"`
	Value    string `json:"value" binding:"required"`
	Unit     string `json:"unit"`
	Notes    string `json:"notes" binding:"max=4000"`
}
