package surgery

import (
	"time"

	"github.com/google/uuid"
)

// Case is a scheduled operation-theatre procedure. Completing a case triggers
// an OT auto-charge against the patient's draft bill, priced by the tariff
// for the procedure category.
type Case struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID       *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`
	ProcedureName string     `db:"procedure_name" json:"procedure_name"`
	Category      string     `db:"category" json:"category"`
	Surgeon       string     `db:"surgeon" json:"surgeon"`
	Theatre       *string    `db:"theatre" json:"theatre,omitempty"`
	Status        string     `db:"status" json:"status"`
	ScheduledAt   time.Time  `db:"scheduled_at" json:"scheduled_at"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DurationMins  *int       `db:"duration_mins" json:"duration_mins,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)
