package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

// InventoryBatch is one lot of a medicine. Stock is drawn from batches in
// first-expiry-first-out order; blocked, recalled, and expired batches never
// dispense.
type InventoryBatch struct {
	ID           uuid.UUID `db:"id" json:"id"`
	MedicineID   uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName string    `db:"medicine_name" json:"medicine_name"`
	BatchNumber  string    `db:"batch_number" json:"batch_number"`
	ExpiryDate   time.Time `db:"expiry_date" json:"expiry_date"`
	Quantity     int       `db:"quantity" json:"quantity"`
	UnitPrice    float64   `db:"unit_price" json:"unit_price"`
	Status       string    `db:"status" json:"status"`
	Location     *string   `db:"location" json:"location,omitempty"`
	Version      int       `db:"version" json:"version"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Prescription is a doctor's medication order, dispensed in one or more
// rounds until every line is covered.
type Prescription struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID      *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`
	PrescribedBy string     `db:"prescribed_by" json:"prescribed_by"`
	Status       string     `db:"status" json:"status"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`

	Items []PrescriptionItem `json:"items"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PrescriptionItem is one medication line. DispensedQuantity tracks how much
// of the prescribed quantity has gone out so far.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName   string    `db:"medicine_name" json:"medicine_name"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Frequency      string    `db:"frequency" json:"frequency"`
	Duration       string    `db:"duration" json:"duration"`
	Quantity       int       `db:"quantity" json:"quantity"`
	DispensedQty   int       `db:"dispensed_qty" json:"dispensed_qty"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
}

// Dispense is one round of handing out medication against a prescription.
type Dispense struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DispenseNumber string    `db:"dispense_number" json:"dispense_number"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	DispensedBy    string    `db:"dispensed_by" json:"dispensed_by"`
	Status         string    `db:"status" json:"status"`

	Items []DispenseItem `json:"items"`

	TotalAmount float64 `db:"total_amount" json:"total_amount"`
	Discount    float64 `db:"discount" json:"discount"`
	NetAmount   float64 `db:"net_amount" json:"net_amount"`

	DispensedAt time.Time `db:"dispensed_at" json:"dispensed_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DispenseItem is one dispensed line with the batches it drew from.
type DispenseItem struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DispenseID   uuid.UUID `db:"dispense_id" json:"dispense_id"`
	MedicineID   uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName string    `db:"medicine_name" json:"medicine_name"`

	PrescribedQuantity int     `db:"prescribed_quantity" json:"prescribed_quantity"`
	DispensedQuantity  int     `db:"dispensed_quantity" json:"dispensed_quantity"`
	UnitPrice          float64 `db:"unit_price" json:"unit_price"`
	TotalPrice         float64 `db:"total_price" json:"total_price"`

	Batches []BatchAllocation `json:"batches"`
}

// BatchAllocation records how much of a dispensed line came from which batch.
type BatchAllocation struct {
	BatchID     uuid.UUID `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
}

// Batch statuses.
const (
	BatchActive   = "active"
	BatchBlocked  = "blocked"
	BatchRecalled = "recalled"
)

// Prescription statuses.
const (
	PrescriptionActive             = "active"
	PrescriptionPartiallyDispensed = "partially-dispensed"
	PrescriptionDispensed          = "dispensed"
	PrescriptionCancelled          = "cancelled"
)

// Dispense statuses.
const (
	DispensePartial   = "partial"
	DispenseCompleted = "completed"
	DispenseCancelled = "cancelled"
)

var validBatchStatuses = map[string]bool{
	BatchActive: true, BatchBlocked: true, BatchRecalled: true,
}
