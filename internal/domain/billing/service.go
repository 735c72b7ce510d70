package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// rateTolerance is the absolute difference above which a rate change on a
// system-generated item counts as tampering. Differences at or below it are
// float noise.
const rateTolerance = 0.01

// TariffFinder resolves the active rate for a service. The bool reports
// whether a tariff exists; a missing tariff skips the charge rather than
// failing it.
type TariffFinder interface {
	FindActiveRate(ctx context.Context, serviceType, category string) (float64, bool, error)
}

// SettingsReader exposes the clinical coding feature flag, read on every
// finalize call.
type SettingsReader interface {
	ClinicalCodingEnabled(ctx context.Context) (bool, error)
}

// CodingStatusReader looks up the coding record status for a visit. found is
// false when no record exists, which leaves finalization ungated.
type CodingStatusReader interface {
	StatusForVisit(ctx context.Context, visitID uuid.UUID) (status string, found bool, err error)
}

// BedChargeInfo describes an admission for bed charge generation.
type BedChargeInfo struct {
	PatientID uuid.UUID
	Ward      string
	Days      int
}

// TheatreChargeInfo describes a surgical case for OT charge generation.
type TheatreChargeInfo struct {
	PatientID     uuid.UUID
	ProcedureName string
	Category      string
}

// LabChargeInfo describes a lab order for lab charge generation.
type LabChargeInfo struct {
	PatientID uuid.UUID
	TestName  string
	TestCode  string
}

// DispenseChargeInfo describes a pharmacy dispense for charge generation.
// The dispense's net amount is billed directly, no tariff lookup.
type DispenseChargeInfo struct {
	PatientID      uuid.UUID
	DispenseNumber string
	NetAmount      float64
}

type BedChargeSource interface {
	BedChargeInfo(ctx context.Context, admissionID uuid.UUID) (*BedChargeInfo, error)
}

type TheatreChargeSource interface {
	TheatreChargeInfo(ctx context.Context, caseID uuid.UUID) (*TheatreChargeInfo, error)
}

type LabChargeSource interface {
	LabChargeInfo(ctx context.Context, orderID uuid.UUID) (*LabChargeInfo, error)
}

type DispenseChargeSource interface {
	DispenseChargeInfo(ctx context.Context, dispenseID uuid.UUID) (*DispenseChargeInfo, error)
}

// ChargeOutcome reports what an auto-charge generator did. A missing tariff
// yields Charged=false with the reason, so the charge cannot vanish silently.
type ChargeOutcome struct {
	Charged    bool   `json:"charged"`
	SkipReason string `json:"skip_reason,omitempty"`
	Bill       *Bill  `json:"bill,omitempty"`
}

// AutoCharge is the input for a system-generated line item.
type AutoCharge struct {
	ItemType    string     `json:"item_type"`
	ItemRef     *uuid.UUID `json:"item_ref,omitempty"`
	Description string     `json:"description"`
	Quantity    float64    `json:"quantity"`
	Rate        float64    `json:"rate"`
	ServiceDate *time.Time `json:"service_date,omitempty"`
}

// UpdateBillRequest carries the mutable parts of a bill update. A nil Items
// leaves the line items untouched; a non-nil Items replaces them wholesale.
type UpdateBillRequest struct {
	Items *[]Item `json:"items,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// PaymentResponsibility is the patient/insurer split on a bill.
type PaymentResponsibility struct {
	PatientAmount    float64 `json:"patient_amount"`
	InsuranceAmount  float64 `json:"insurance_amount"`
	InsuranceClaimID *string `json:"insurance_claim_id,omitempty"`
	InsuranceStatus  *string `json:"insurance_status,omitempty"`
}

// TxRunner executes fn as one atomic unit of work. The default runs fn
// directly; production wiring supplies one backed by db.WithTx so that a
// mutation and its audit entry commit or roll back together.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	bills    BillRepository
	payments PaymentRepository
	audit    AuditRepository

	tariffs  TariffFinder
	settings SettingsReader
	coding   CodingStatusReader

	beds      BedChargeSource
	theatres  TheatreChargeSource
	labs      LabChargeSource
	dispenses DispenseChargeSource

	runTx TxRunner
	now   func() time.Time
}

func NewService(bills BillRepository, payments PaymentRepository, audit AuditRepository) *Service {
	return &Service{
		bills:    bills,
		payments: payments,
		audit:    audit,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		now: time.Now,
	}
}

// SetTxRunner attaches the transaction boundary wrapped around every bill
// mutation and its audit entry.
func (s *Service) SetTxRunner(run TxRunner) { s.runTx = run }

// SetTariffFinder attaches the rate catalog used by bed/OT/lab generators.
func (s *Service) SetTariffFinder(t TariffFinder) { s.tariffs = t }

// SetFinalizeGate attaches the settings flag and coding lookup consulted by
// FinalizeBill.
func (s *Service) SetFinalizeGate(settings SettingsReader, coding CodingStatusReader) {
	s.settings = settings
	s.coding = coding
}

// SetChargeSources attaches the clinical lookups behind the auto-charge
// generators. Any of them may be nil if that generator is unused.
func (s *Service) SetChargeSources(beds BedChargeSource, theatres TheatreChargeSource, labs LabChargeSource, dispenses DispenseChargeSource) {
	s.beds = beds
	s.theatres = theatres
	s.labs = labs
	s.dispenses = dispenses
}

// -- Bill lifecycle --

// GenerateBill allocates a bill number, computes totals from any initial
// items, and opens the bill in draft.
func (s *Service) GenerateBill(ctx context.Context, b *Bill, userID string) error {
	if b.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	for i := range b.Items {
		if err := validateItem(&b.Items[i]); err != nil {
			return err
		}
		ComputeItemValues(&b.Items[i])
		if b.Items[i].BilledAt.IsZero() {
			b.Items[i].BilledAt = s.now()
		}
	}

	now := s.now()
	seq, err := s.bills.NextSequence(ctx, now.Year(), int(now.Month()))
	if err != nil {
		return fmt.Errorf("allocate bill number: %w", err)
	}
	b.BillNumber = FormatBillNumber(now, seq)
	b.Status = StatusDraft
	b.PaymentStatus = PaymentPending
	b.IsLocked = false
	b.PaidAmount = 0
	s.applyTotals(b)

	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Create(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionBillCreated, userID, map[string]interface{}{
			"bill_number": b.BillNumber,
		})
	})
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.bills.GetByID(ctx, id)
}

func (s *Service) GetBillByNumber(ctx context.Context, billNumber string) (*Bill, error) {
	return s.bills.GetByNumber(ctx, billNumber)
}

func (s *Service) ListBillsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return s.bills.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) GetLatestDraftBill(ctx context.Context, patientID uuid.UUID) (*Bill, error) {
	return s.bills.GetLatestDraftByPatient(ctx, patientID)
}

// AddItems appends line items to an unlocked bill and recomputes totals.
func (s *Service) AddItems(ctx context.Context, billID uuid.UUID, items []Item, userID string) (*Bill, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.IsLocked {
		return nil, fmt.Errorf("%w: bill %s is locked", ErrInvalidState, b.BillNumber)
	}

	for i := range items {
		if err := validateItem(&items[i]); err != nil {
			return nil, err
		}
		ComputeItemValues(&items[i])
		items[i].BillID = b.ID
		if items[i].BilledAt.IsZero() {
			items[i].BilledAt = s.now()
		}
	}
	b.Items = append(b.Items, items...)
	s.applyTotals(b)

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionItemsAdded, userID, map[string]interface{}{
			"item_count": len(items),
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBill applies a general update. A locked bill only accepts edits from
// an admin, and every such edit is audited as a post-finalization edit. Item
// replacement refuses to change the rate of a system-generated item.
func (s *Service) UpdateBill(ctx context.Context, billID uuid.UUID, upd UpdateBillRequest, userID string, roles []string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	wasLocked := b.IsLocked
	if wasLocked && !hasAdmin(roles) {
		return nil, fmt.Errorf("%w: bill %s is finalized; only an admin may modify it", ErrUnauthorized, b.BillNumber)
	}

	if upd.Items != nil {
		newItems := *upd.Items
		if err := checkSystemItemRates(b.Items, newItems); err != nil {
			return nil, err
		}
		for i := range newItems {
			if err := validateItem(&newItems[i]); err != nil {
				return nil, err
			}
			ComputeItemValues(&newItems[i])
			newItems[i].BillID = b.ID
			if newItems[i].BilledAt.IsZero() {
				newItems[i].BilledAt = s.now()
			}
		}
		b.Items = newItems
	}
	if upd.Notes != nil {
		b.Notes = upd.Notes
	}
	s.applyTotals(b)

	action := ActionBillUpdated
	if wasLocked {
		action = ActionPostFinalization
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, action, userID, nil)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AddAutoCharge appends a system-generated item. No discount or tax applies
// at this stage: the net amount is quantity times rate.
func (s *Service) AddAutoCharge(ctx context.Context, billID uuid.UUID, charge AutoCharge, userID string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.IsLocked {
		return nil, fmt.Errorf("%w: cannot add charges to locked bill %s", ErrInvalidState, b.BillNumber)
	}

	qty := charge.Quantity
	if qty == 0 {
		qty = 1
	}
	item := Item{
		BillID:            b.ID,
		ItemType:          charge.ItemType,
		ItemRef:           charge.ItemRef,
		Description:       charge.Description,
		Quantity:          qty,
		Rate:              charge.Rate,
		IsSystemGenerated: true,
		ServiceDate:       charge.ServiceDate,
		BilledAt:          s.now(),
	}
	if err := validateItem(&item); err != nil {
		return nil, err
	}
	ComputeItemValues(&item)

	b.Items = append(b.Items, item)
	s.applyTotals(b)

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionAutoCharge, userID, map[string]interface{}{
			"item_type":   charge.ItemType,
			"description": charge.Description,
			"amount":      item.Amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// -- Auto-charge generators --

// GenerateBedCharges bills the patient's draft bill for the admission's stay,
// priced by the active bed tariff for the ward. A missing tariff skips the
// charge and says so in the outcome.
func (s *Service) GenerateBedCharges(ctx context.Context, admissionID uuid.UUID, userID string) (*ChargeOutcome, error) {
	info, err := s.beds.BedChargeInfo(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	bill, err := s.draftBillFor(ctx, info.PatientID)
	if err != nil {
		return nil, err
	}

	rate, found, err := s.tariffs.FindActiveRate(ctx, "bed", info.Ward)
	if err != nil {
		return nil, fmt.Errorf("tariff lookup: %w", err)
	}
	if !found {
		return &ChargeOutcome{
			SkipReason: fmt.Sprintf("no active tariff for bed/%s", info.Ward),
			Bill:       bill,
		}, nil
	}

	ref := admissionID
	updated, err := s.AddAutoCharge(ctx, bill.ID, AutoCharge{
		ItemType:    "bed",
		ItemRef:     &ref,
		Description: fmt.Sprintf("Bed charges - %s (%d days)", info.Ward, info.Days),
		Quantity:    float64(info.Days),
		Rate:        rate,
	}, userID)
	if err != nil {
		return nil, err
	}
	return &ChargeOutcome{Charged: true, Bill: updated}, nil
}

// GenerateTheatreCharges bills the draft bill for a surgical case, priced by
// the operation-theatre tariff for the procedure category.
func (s *Service) GenerateTheatreCharges(ctx context.Context, caseID uuid.UUID, userID string) (*ChargeOutcome, error) {
	info, err := s.theatres.TheatreChargeInfo(ctx, caseID)
	if err != nil {
		return nil, err
	}
	bill, err := s.draftBillFor(ctx, info.PatientID)
	if err != nil {
		return nil, err
	}

	rate, found, err := s.tariffs.FindActiveRate(ctx, "operation-theatre", info.Category)
	if err != nil {
		return nil, fmt.Errorf("tariff lookup: %w", err)
	}
	if !found {
		return &ChargeOutcome{
			SkipReason: fmt.Sprintf("no active tariff for operation-theatre/%s", info.Category),
			Bill:       bill,
		}, nil
	}

	ref := caseID
	updated, err := s.AddAutoCharge(ctx, bill.ID, AutoCharge{
		ItemType:    "surgery",
		ItemRef:     &ref,
		Description: fmt.Sprintf("Operation theatre - %s", info.ProcedureName),
		Rate:        rate,
	}, userID)
	if err != nil {
		return nil, err
	}
	return &ChargeOutcome{Charged: true, Bill: updated}, nil
}

// GenerateLabCharges bills the draft bill for a lab order, priced by the lab
// tariff for the test code.
func (s *Service) GenerateLabCharges(ctx context.Context, orderID uuid.UUID, userID string) (*ChargeOutcome, error) {
	info, err := s.labs.LabChargeInfo(ctx, orderID)
	if err != nil {
		return nil, err
	}
	bill, err := s.draftBillFor(ctx, info.PatientID)
	if err != nil {
		return nil, err
	}

	rate, found, err := s.tariffs.FindActiveRate(ctx, "lab", info.TestCode)
	if err != nil {
		return nil, fmt.Errorf("tariff lookup: %w", err)
	}
	if !found {
		return &ChargeOutcome{
			SkipReason: fmt.Sprintf("no active tariff for lab/%s", info.TestCode),
			Bill:       bill,
		}, nil
	}

	ref := orderID
	updated, err := s.AddAutoCharge(ctx, bill.ID, AutoCharge{
		ItemType:    "lab",
		ItemRef:     &ref,
		Description: fmt.Sprintf("Lab test - %s", info.TestName),
		Rate:        rate,
	}, userID)
	if err != nil {
		return nil, err
	}
	return &ChargeOutcome{Charged: true, Bill: updated}, nil
}

// GeneratePharmacyCharges bills the draft bill for a completed dispense. The
// dispense's net amount is the rate; no tariff is involved.
func (s *Service) GeneratePharmacyCharges(ctx context.Context, dispenseID uuid.UUID, userID string) (*ChargeOutcome, error) {
	info, err := s.dispenses.DispenseChargeInfo(ctx, dispenseID)
	if err != nil {
		return nil, err
	}
	bill, err := s.draftBillFor(ctx, info.PatientID)
	if err != nil {
		return nil, err
	}

	ref := dispenseID
	updated, err := s.AddAutoCharge(ctx, bill.ID, AutoCharge{
		ItemType:    "medicine",
		ItemRef:     &ref,
		Description: fmt.Sprintf("Pharmacy dispense - %s", info.DispenseNumber),
		Rate:        info.NetAmount,
	}, userID)
	if err != nil {
		return nil, err
	}
	return &ChargeOutcome{Charged: true, Bill: updated}, nil
}

// -- Discount workflow --

// RequestDiscount attaches a pending discount request to a draft bill.
func (s *Service) RequestDiscount(ctx context.Context, billID uuid.UUID, amount float64, reason, requestedBy string) (*Bill, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("discount amount must be positive")
	}
	if reason == "" {
		return nil, fmt.Errorf("discount reason is required")
	}
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusDraft || b.IsLocked {
		return nil, fmt.Errorf("%w: discounts can only be requested on draft bills", ErrInvalidState)
	}
	if b.Discount != nil && b.Discount.Status == DiscountPending {
		return nil, fmt.Errorf("%w: a discount request is already pending", ErrInvalidState)
	}

	b.Discount = &DiscountRequest{
		Amount:      amount,
		Reason:      reason,
		RequestedBy: requestedBy,
		RequestedAt: s.now(),
		Status:      DiscountPending,
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionDiscountRequested, requestedBy, map[string]interface{}{
			"amount": amount,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ApproveDiscount decides a pending discount request. Approval adds the
// amount to the bill's total discount but deliberately does not touch the
// grand total or balance; RecalculateTotals is the explicit second step that
// folds the discount in.
func (s *Service) ApproveDiscount(ctx context.Context, billID uuid.UUID, approverID string, approve bool, rejectionReason string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.Discount == nil || b.Discount.Status != DiscountPending {
		return nil, fmt.Errorf("%w: no pending discount request", ErrInvalidState)
	}

	now := s.now()
	b.Discount.DecidedBy = &approverID
	b.Discount.DecidedAt = &now

	if approve {
		b.Discount.Status = DiscountApproved
		b.TotalDiscount = RoundMoney(b.TotalDiscount + b.Discount.Amount)
	} else {
		b.Discount.Status = DiscountRejected
		if rejectionReason != "" {
			b.Discount.RejectionReason = &rejectionReason
		}
	}

	action := ActionDiscountApproved
	details := map[string]interface{}{"amount": b.Discount.Amount}
	if !approve {
		action = ActionDiscountRejected
		details["rejection_reason"] = rejectionReason
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, action, approverID, details)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// RecalculateTotals recomputes every aggregate from the line items plus any
// approved discount, bringing the grand total and balance back in line.
func (s *Service) RecalculateTotals(ctx context.Context, billID uuid.UUID, userID string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	s.applyTotals(b)
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionTotalsRecalced, userID, map[string]interface{}{
			"grand_total": b.GrandTotal,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// -- Finalization & cancellation --

// FinalizeBill locks the bill exactly once. When the clinical coding flag is
// on and the bill is linked to a visit, the visit's coding record must be
// approved first.
func (s *Service) FinalizeBill(ctx context.Context, billID uuid.UUID, userID string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.IsLocked {
		return nil, fmt.Errorf("%w: bill %s is already finalized", ErrInvalidState, b.BillNumber)
	}

	if s.settings != nil {
		enabled, err := s.settings.ClinicalCodingEnabled(ctx)
		if err != nil {
			return nil, err
		}
		if enabled && b.VisitID != nil && s.coding != nil {
			status, found, err := s.coding.StatusForVisit(ctx, *b.VisitID)
			if err != nil {
				return nil, fmt.Errorf("coding lookup: %w", err)
			}
			if found && status != "approved" {
				return nil, fmt.Errorf("%w: clinical coding must be approved before finalization (current status: %s)",
					ErrBusinessRule, statusDisplay(status))
			}
		}
	}

	now := s.now()
	prevStatus := b.Status
	b.Status = StatusFinalized
	b.IsLocked = true
	b.LockedAt = &now
	b.LockedBy = &userID

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionBillFinalized, userID, map[string]interface{}{
			"previous_status": prevStatus,
			"new_status":      b.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// SetPaymentResponsibility overwrites the patient/insurer split.
func (s *Service) SetPaymentResponsibility(ctx context.Context, billID uuid.UUID, resp PaymentResponsibility, userID string) (*Bill, error) {
	if resp.PatientAmount < 0 || resp.InsuranceAmount < 0 {
		return nil, fmt.Errorf("responsibility amounts cannot be negative")
	}
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	b.PatientAmount = resp.PatientAmount
	b.InsuranceAmount = resp.InsuranceAmount
	b.InsuranceClaimID = resp.InsuranceClaimID
	b.InsuranceStatus = resp.InsuranceStatus
	if resp.InsuranceAmount > 0 && resp.InsuranceStatus == nil {
		pending := InsurancePending
		b.InsuranceStatus = &pending
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionResponsibilitySet, userID, map[string]interface{}{
			"patient_amount":   resp.PatientAmount,
			"insurance_amount": resp.InsuranceAmount,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelBill marks the payment status cancelled. There is intentionally no
// lock check: cancellation is the escape hatch for finalized bills.
func (s *Service) CancelBill(ctx context.Context, billID uuid.UUID, userID string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus == PaymentCancelled {
		return nil, fmt.Errorf("%w: bill %s is already cancelled", ErrInvalidState, b.BillNumber)
	}

	prev := b.PaymentStatus
	b.PaymentStatus = PaymentCancelled
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionBillCancelled, userID, map[string]interface{}{
			"previous_payment_status": prev,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// -- Payments --

// RecordPayment appends a payment and rederives the payment status. A payment
// that would push paid above the grand total is rejected whole.
func (s *Service) RecordPayment(ctx context.Context, billID uuid.UUID, p *Payment) (*Bill, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	if p.Mode == "" {
		return nil, fmt.Errorf("payment mode is required")
	}
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	newPaid := RoundMoney(b.PaidAmount + p.Amount)
	if newPaid > b.GrandTotal {
		return nil, fmt.Errorf("%w: payment of %.2f exceeds outstanding balance of %.2f",
			ErrBusinessRule, p.Amount, b.BalanceAmount)
	}

	prevStatus := b.PaymentStatus
	b.PaidAmount = newPaid
	b.BalanceAmount = RoundMoney(b.GrandTotal - newPaid)
	b.PaymentStatus = PaymentStatusFor(b.PaidAmount, b.GrandTotal)

	if p.Mode == ModeInsurance && b.InsuranceStatus != nil &&
		*b.InsuranceStatus == InsurancePending && b.PaymentStatus == PaymentPaid {
		settled := InsuranceSettled
		b.InsuranceStatus = &settled
	}

	p.BillID = b.ID
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = s.now()
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		return s.appendAudit(ctx, b.ID, ActionPaymentRecorded, p.ReceivedBy, map[string]interface{}{
			"amount":          p.Amount,
			"mode":            p.Mode,
			"previous_status": prevStatus,
			"new_status":      b.PaymentStatus,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListPayments(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	return s.payments.ListByBill(ctx, billID)
}

func (s *Service) ListAuditTrail(ctx context.Context, billID uuid.UUID, limit, offset int) ([]*AuditEntry, int, error) {
	return s.audit.ListByBill(ctx, billID, limit, offset)
}

// -- helpers --

// applyTotals recomputes the aggregates from the items, folds in an approved
// bill-level discount, and rederives the balance.
func (s *Service) applyTotals(b *Bill) {
	t := CalculateTotals(b.Items)
	if b.Discount != nil && b.Discount.Status == DiscountApproved {
		t.TotalDiscount = RoundMoney(t.TotalDiscount + b.Discount.Amount)
		t.GrandTotal = RoundMoney(t.Subtotal - t.TotalDiscount + t.TotalTax)
	}
	b.Subtotal = t.Subtotal
	b.TotalDiscount = t.TotalDiscount
	b.TotalTax = t.TotalTax
	b.GrandTotal = t.GrandTotal
	b.BalanceAmount = RoundMoney(b.GrandTotal - b.PaidAmount)
}

func (s *Service) draftBillFor(ctx context.Context, patientID uuid.UUID) (*Bill, error) {
	b, err := s.bills.GetLatestDraftByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: no draft bill open for patient %s", ErrNotFound, patientID)
	}
	return b, nil
}

// appendAudit writes the trail entry for a mutation. The error propagates:
// a mutation whose audit entry cannot be written must not report success.
func (s *Service) appendAudit(ctx context.Context, billID uuid.UUID, action, performedBy string, details map[string]interface{}) error {
	if err := s.audit.Append(ctx, &AuditEntry{
		BillID:      billID,
		Action:      action,
		PerformedBy: performedBy,
		PerformedAt: s.now(),
		Details:     details,
	}); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func validateItem(it *Item) error {
	if !validItemTypes[it.ItemType] {
		return fmt.Errorf("invalid item type: %s", it.ItemType)
	}
	if it.Description == "" {
		return fmt.Errorf("item description is required")
	}
	if it.Quantity <= 0 {
		return fmt.Errorf("item quantity must be positive")
	}
	if it.Rate < 0 {
		return fmt.Errorf("item rate cannot be negative")
	}
	return nil
}

// checkSystemItemRates compares replacement items against the stored ones and
// rejects a rate change on any system-generated item. Matching is by item ID;
// new items without an ID are untouched originals' replacements and pass.
func checkSystemItemRates(current, replacement []Item) error {
	protected := make(map[uuid.UUID]Item)
	for _, it := range current {
		if it.IsSystemGenerated {
			protected[it.ID] = it
		}
	}
	for _, it := range replacement {
		orig, ok := protected[it.ID]
		if !ok {
			continue
		}
		if math.Abs(it.Rate-orig.Rate) > rateTolerance {
			return fmt.Errorf("%w: cannot change the rate of system-generated item %q",
				ErrBusinessRule, orig.Description)
		}
	}
	return nil
}

func hasAdmin(roles []string) bool {
	for _, r := range roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

func statusDisplay(status string) string {
	return strings.ToUpper(strings.ReplaceAll(status, "-", " "))
}
