package lab

import (
	"time"

	"github.com/google/uuid"
)

// Order is a single lab test ordered for a patient. Completing an order is
// the trigger for a lab auto-charge on the patient's draft bill.
type Order struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID     *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`
	TestName    string     `db:"test_name" json:"test_name"`
	TestCode    string     `db:"test_code" json:"test_code"`
	OrderedBy   string     `db:"ordered_by" json:"ordered_by"`
	Status      string     `db:"status" json:"status"`
	Result      *string    `db:"result" json:"result,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	StatusOrdered   = "ordered"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)
