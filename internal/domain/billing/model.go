package billing

import (
	"time"

	"github.com/google/uuid"
)

// Bill is a patient's running account: line items appended by hand or by
// auto-charge generators while in draft, locked at finalization, then settled
// through payments.
type Bill struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	BillNumber string     `db:"bill_number" json:"bill_number"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID    *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`

	Items []Item `json:"items"`

	Subtotal      float64 `db:"subtotal" json:"subtotal"`
	TotalDiscount float64 `db:"total_discount" json:"total_discount"`
	TotalTax      float64 `db:"total_tax" json:"total_tax"`
	GrandTotal    float64 `db:"grand_total" json:"grand_total"`
	PaidAmount    float64 `db:"paid_amount" json:"paid_amount"`
	BalanceAmount float64 `db:"balance_amount" json:"balance_amount"`

	Status        string     `db:"status" json:"status"`
	PaymentStatus string     `db:"payment_status" json:"payment_status"`
	IsLocked      bool       `db:"is_locked" json:"is_locked"`
	LockedAt      *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LockedBy      *string    `db:"locked_by" json:"locked_by,omitempty"`

	PatientAmount    float64 `db:"patient_amount" json:"patient_amount"`
	InsuranceAmount  float64 `db:"insurance_amount" json:"insurance_amount"`
	InsuranceClaimID *string `db:"insurance_claim_id" json:"insurance_claim_id,omitempty"`
	InsuranceStatus  *string `db:"insurance_status" json:"insurance_status,omitempty"`

	Discount *DiscountRequest `json:"discount_request,omitempty"`

	Notes     *string   `db:"notes" json:"notes,omitempty"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Item is one bill line. ItemRef points into the source entity named by
// ItemType (an admission for bed, a lab order for lab, and so on).
// System-generated items come from auto-charge generators and their rate is
// protected from manual edits.
type Item struct {
	ID     uuid.UUID `db:"id" json:"id"`
	BillID uuid.UUID `db:"bill_id" json:"bill_id"`

	ItemType    string     `db:"item_type" json:"item_type"`
	ItemRef     *uuid.UUID `db:"item_ref" json:"item_ref,omitempty"`
	Description string     `db:"description" json:"description"`

	Quantity float64 `db:"quantity" json:"quantity"`
	Rate     float64 `db:"rate" json:"rate"`
	Amount   float64 `db:"amount" json:"amount"`

	// DiscountAmount is the explicit discount input; when nil the discount is
	// derived from DiscountPercent.
	DiscountAmount  *float64 `db:"discount_amount" json:"discount_amount,omitempty"`
	DiscountPercent float64  `db:"discount_percent" json:"discount_percent"`
	Discount        float64  `db:"discount" json:"discount"`
	TaxPercent      float64  `db:"tax_percent" json:"tax_percent"`
	Tax             float64  `db:"tax" json:"tax"`
	NetAmount       float64  `db:"net_amount" json:"net_amount"`

	IsSystemGenerated bool       `db:"is_system_generated" json:"is_system_generated"`
	ServiceDate       *time.Time `db:"service_date" json:"service_date,omitempty"`
	BilledAt          time.Time  `db:"billed_at" json:"billed_at"`
}

// DiscountRequest is the request/approve/reject sub-state attached to a bill.
type DiscountRequest struct {
	Amount          float64    `db:"discount_req_amount" json:"amount"`
	Reason          string     `db:"discount_req_reason" json:"reason"`
	RequestedBy     string     `db:"discount_req_by" json:"requested_by"`
	RequestedAt     time.Time  `db:"discount_req_at" json:"requested_at"`
	Status          string     `db:"discount_req_status" json:"status"`
	DecidedBy       *string    `db:"discount_decided_by" json:"decided_by,omitempty"`
	DecidedAt       *time.Time `db:"discount_decided_at" json:"decided_at,omitempty"`
	RejectionReason *string    `db:"discount_rejection_reason" json:"rejection_reason,omitempty"`
}

// Payment is one settlement against a bill.
type Payment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BillID     uuid.UUID `db:"bill_id" json:"bill_id"`
	Amount     float64   `db:"amount" json:"amount"`
	Mode       string    `db:"mode" json:"mode"`
	Reference  *string   `db:"reference" json:"reference,omitempty"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	ReceivedBy string    `db:"received_by" json:"received_by"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
}

// AuditEntry is one line of a bill's tamper-evident history.
type AuditEntry struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	BillID      uuid.UUID              `db:"bill_id" json:"bill_id"`
	Action      string                 `db:"action" json:"action"`
	PerformedBy string                 `db:"performed_by" json:"performed_by"`
	PerformedAt time.Time              `db:"performed_at" json:"performed_at"`
	Details     map[string]interface{} `db:"details" json:"details,omitempty"`
}

// Bill statuses.
const (
	StatusDraft     = "draft"
	StatusFinalized = "finalized"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentPartial   = "partial"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

// Discount request statuses.
const (
	DiscountPending  = "pending"
	DiscountApproved = "approved"
	DiscountRejected = "rejected"
)

// Payment modes.
const (
	ModeCash      = "cash"
	ModeCard      = "card"
	ModeUPI       = "upi"
	ModeInsurance = "insurance"
)

// Insurance claim statuses.
const (
	InsurancePending = "pending"
	InsuranceSettled = "settled"
)

// Audit actions.
const (
	ActionBillCreated       = "bill_created"
	ActionItemsAdded        = "items_added"
	ActionBillUpdated       = "bill_updated"
	ActionPostFinalization  = "post_finalization_edit"
	ActionAutoCharge        = "auto_charge_added"
	ActionDiscountRequested = "discount_requested"
	ActionDiscountApproved  = "discount_approved"
	ActionDiscountRejected  = "discount_rejected"
	ActionTotalsRecalced    = "totals_recalculated"
	ActionBillFinalized     = "bill_finalized"
	ActionResponsibilitySet = "payment_responsibility_set"
	ActionBillCancelled     = "bill_cancelled"
	ActionPaymentRecorded   = "payment_recorded"
)

var validItemTypes = map[string]bool{
	"consultation": true, "procedure": true, "lab": true, "radiology": true,
	"medicine": true, "bed": true, "surgery": true, "nursing": true, "other": true,
}
