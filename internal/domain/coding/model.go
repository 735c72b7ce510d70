package coding

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record tracks the diagnosis/procedure coding workflow for a single visit.
// Billing reads it to decide whether a bill linked to the visit may be
// finalized.
type Record struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	VisitID          uuid.UUID  `db:"visit_id" json:"visit_id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status           string     `db:"status" json:"status"`
	PrimaryDiagnosis *string    `db:"primary_diagnosis" json:"primary_diagnosis,omitempty"`
	DiagnosisCodes   []string   `db:"diagnosis_codes" json:"diagnosis_codes,omitempty"`
	ProcedureCodes   []string   `db:"procedure_codes" json:"procedure_codes,omitempty"`
	CodedBy          *string    `db:"coded_by" json:"coded_by,omitempty"`
	ApprovedBy       *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	StatusAwaitingCoding = "awaiting-coding"
	StatusInProgress     = "in-progress"
	StatusApproved       = "approved"
	StatusRejected       = "rejected"
)

// StatusDisplay renders a status for user-facing messages,
// e.g. "in-progress" becomes "IN PROGRESS".
func StatusDisplay(status string) string {
	return strings.ToUpper(strings.ReplaceAll(status, "-", " "))
}
