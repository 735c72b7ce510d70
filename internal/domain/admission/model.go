package admission

import (
	"time"

	"github.com/google/uuid"
)

// Admission is an inpatient stay. Bed auto-charges are generated from the
// ward and the number of days admitted.
type Admission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID      *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`
	Ward         string     `db:"ward" json:"ward"`
	BedNumber    *string    `db:"bed_number" json:"bed_number,omitempty"`
	AdmittedBy   string     `db:"admitted_by" json:"admitted_by"`
	Status       string     `db:"status" json:"status"`
	AdmittedAt   time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	StatusAdmitted   = "admitted"
	StatusDischarged = "discharged"
)

// Days returns the chargeable length of stay in whole days, minimum 1.
// An open admission is measured against now.
func (a *Admission) Days(now time.Time) int {
	end := now
	if a.DischargedAt != nil {
		end = *a.DischargedAt
	}
	days := int(end.Sub(a.AdmittedAt).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}
