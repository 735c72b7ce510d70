package pharmacy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SafetyChecker vets a prescription before any stock moves. A non-nil error
// blocks the dispense outright.
type SafetyChecker interface {
	CheckDispense(ctx context.Context, p *Prescription) error
}

// AllowAllSafetyChecker passes every dispense. The default until a clinical
// decision-support integration is wired in.
type AllowAllSafetyChecker struct{}

func (AllowAllSafetyChecker) CheckDispense(context.Context, *Prescription) error { return nil }

// ChargeRecorder posts a finished dispense to the patient's account.
type ChargeRecorder interface {
	RecordDispenseCharge(ctx context.Context, d *Dispense) error
}

// TxRunner executes fn as one atomic unit of work. The default runs fn
// directly; production wiring supplies one backed by db.WithTx so the dispense
// document and the prescription progress commit together.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	batches       BatchRepository
	prescriptions PrescriptionRepository
	dispenses     DispenseRepository

	safety  SafetyChecker
	charges ChargeRecorder

	runTx TxRunner
	now   func() time.Time
}

func NewService(batches BatchRepository, prescriptions PrescriptionRepository, dispenses DispenseRepository) *Service {
	return &Service{
		batches:       batches,
		prescriptions: prescriptions,
		dispenses:     dispenses,
		safety:        AllowAllSafetyChecker{},
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		now: time.Now,
	}
}

func (s *Service) SetSafetyChecker(sc SafetyChecker) { s.safety = sc }

// SetChargeRecorder attaches the billing hook fired after each dispense.
func (s *Service) SetChargeRecorder(cr ChargeRecorder) { s.charges = cr }

// SetTxRunner attaches the transaction boundary wrapped around the dispense
// write and its prescription update.
func (s *Service) SetTxRunner(run TxRunner) { s.runTx = run }

// -- Inventory --

func (s *Service) AddBatch(ctx context.Context, b *InventoryBatch) error {
	if b.MedicineID == uuid.Nil {
		return fmt.Errorf("medicine_id is required")
	}
	if b.MedicineName == "" {
		return fmt.Errorf("medicine_name is required")
	}
	if b.BatchNumber == "" {
		return fmt.Errorf("batch_number is required")
	}
	if b.Quantity <= 0 {
		return fmt.Errorf("batch quantity must be positive")
	}
	if b.UnitPrice < 0 {
		return fmt.Errorf("unit price cannot be negative")
	}
	if !b.ExpiryDate.After(s.now()) {
		return fmt.Errorf("batch is already expired")
	}
	if b.Status == "" {
		b.Status = BatchActive
	}
	if !validBatchStatuses[b.Status] {
		return fmt.Errorf("invalid batch status: %s", b.Status)
	}
	return s.batches.Create(ctx, b)
}

func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*InventoryBatch, error) {
	return s.batches.GetByID(ctx, id)
}

func (s *Service) ListBatches(ctx context.Context, status string, limit, offset int) ([]*InventoryBatch, int, error) {
	return s.batches.List(ctx, status, limit, offset)
}

// BlockBatch pulls a batch out of dispensing, for quality holds.
func (s *Service) BlockBatch(ctx context.Context, id uuid.UUID) (*InventoryBatch, error) {
	return s.setBatchStatus(ctx, id, BatchBlocked)
}

// RecallBatch marks a batch recalled. Recalls are terminal.
func (s *Service) RecallBatch(ctx context.Context, id uuid.UUID) (*InventoryBatch, error) {
	return s.setBatchStatus(ctx, id, BatchRecalled)
}

// ReactivateBatch lifts a quality hold. Recalled batches stay recalled.
func (s *Service) ReactivateBatch(ctx context.Context, id uuid.UUID) (*InventoryBatch, error) {
	b, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == BatchRecalled {
		return nil, fmt.Errorf("%w: recalled batches cannot be reactivated", ErrInvalidState)
	}
	b.Status = BatchActive
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) setBatchStatus(ctx context.Context, id uuid.UUID, status string) (*InventoryBatch, error) {
	b, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == BatchRecalled {
		return nil, fmt.Errorf("%w: batch %s is recalled", ErrInvalidState, b.BatchNumber)
	}
	b.Status = status
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// StockForMedicine returns the dispensable quantity across batches.
func (s *Service) StockForMedicine(ctx context.Context, medicineID uuid.UUID) (int, error) {
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return 0, err
	}
	return AvailableQuantity(batches, s.now()), nil
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.PrescribedBy == "" {
		return fmt.Errorf("prescribed_by is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("at least one prescription item is required")
	}
	for i := range p.Items {
		it := &p.Items[i]
		if it.MedicineID == uuid.Nil {
			return fmt.Errorf("item %d: medicine_id is required", i)
		}
		if it.MedicineName == "" {
			return fmt.Errorf("item %d: medicine_name is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
		it.DispensedQty = 0
	}
	p.Status = PrescriptionActive
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) CancelPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == PrescriptionDispensed || p.Status == PrescriptionCancelled {
		return nil, fmt.Errorf("%w: prescription is %s", ErrInvalidState, p.Status)
	}
	p.Status = PrescriptionCancelled
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// -- Dispensing --

// DispensePrescription hands out as much of the outstanding prescription as
// current stock allows, drawing batches earliest-expiry-first. Lines with no
// dispensable stock are left outstanding and the dispense comes back partial;
// when nothing at all can move the call fails with ErrInsufficientStock and
// no stock changes. When a billing hook is attached and fails, the dispense
// and the stock decrements are already durable; the returned dispense
// accompanies the error so the caller can re-post the charge.
func (s *Service) DispensePrescription(ctx context.Context, prescriptionID uuid.UUID, pharmacistID string) (*Dispense, error) {
	p, err := s.prescriptions.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p.Status != PrescriptionActive && p.Status != PrescriptionPartiallyDispensed {
		return nil, fmt.Errorf("%w: prescription is %s", ErrInvalidState, p.Status)
	}
	if err := s.safety.CheckDispense(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSafetyBlocked, err)
	}

	now := s.now()

	// Plan all allocations before touching stock, so a prescription with
	// nothing dispensable fails clean.
	type linePlan struct {
		item        *PrescriptionItem
		take        int
		allocations []Allocation
	}
	var plans []linePlan
	for i := range p.Items {
		item := &p.Items[i]
		remaining := item.Quantity - item.DispensedQty
		if remaining <= 0 {
			continue
		}
		batches, err := s.batches.ListByMedicine(ctx, item.MedicineID)
		if err != nil {
			return nil, err
		}
		available := AvailableQuantity(batches, now)
		take := remaining
		if take > available {
			take = available
		}
		if take == 0 {
			continue
		}
		allocations, err := AllocateFEFO(batches, take, now)
		if err != nil {
			return nil, err
		}
		plans = append(plans, linePlan{item: item, take: take, allocations: allocations})
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no dispensable stock for prescription", ErrInsufficientStock)
	}

	d := &Dispense{
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		DispensedBy:    pharmacistID,
		DispensedAt:    now,
	}

	var total decimal.Decimal
	for _, plan := range plans {
		var lineTotal decimal.Decimal
		var batchAllocs []BatchAllocation
		for _, a := range plan.allocations {
			if err := s.batches.DecrementBatch(ctx, a.Batch.ID, a.Quantity, a.Batch.Version); err != nil {
				return nil, fmt.Errorf("decrement batch %s: %w", a.Batch.BatchNumber, err)
			}
			lineTotal = lineTotal.Add(decimal.NewFromInt(int64(a.Quantity)).Mul(decimal.NewFromFloat(a.Batch.UnitPrice)))
			batchAllocs = append(batchAllocs, BatchAllocation{
				BatchID:     a.Batch.ID,
				BatchNumber: a.Batch.BatchNumber,
				Quantity:    a.Quantity,
			})
		}
		lineTotal = lineTotal.Round(2)
		total = total.Add(lineTotal)

		plan.item.DispensedQty += plan.take
		d.Items = append(d.Items, DispenseItem{
			MedicineID:         plan.item.MedicineID,
			MedicineName:       plan.item.MedicineName,
			PrescribedQuantity: plan.item.Quantity,
			DispensedQuantity:  plan.take,
			UnitPrice:          plan.allocations[0].Batch.UnitPrice,
			TotalPrice:         lineTotal.InexactFloat64(),
			Batches:            batchAllocs,
		})
	}

	total = total.Round(2)
	d.TotalAmount = total.InexactFloat64()
	d.NetAmount = total.Sub(decimal.NewFromFloat(d.Discount)).Round(2).InexactFloat64()

	complete := true
	for _, it := range p.Items {
		if it.DispensedQty < it.Quantity {
			complete = false
			break
		}
	}
	if complete {
		d.Status = DispenseCompleted
		p.Status = PrescriptionDispensed
	} else {
		d.Status = DispensePartial
		p.Status = PrescriptionPartiallyDispensed
	}

	seq, err := s.dispenses.NextSequence(ctx, now.Year(), int(now.Month()), now.Day())
	if err != nil {
		return nil, fmt.Errorf("allocate dispense number: %w", err)
	}
	d.DispenseNumber = FormatDispenseNumber(now, seq)

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.dispenses.Create(ctx, d); err != nil {
			return err
		}
		return s.prescriptions.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if s.charges != nil {
		if err := s.charges.RecordDispenseCharge(ctx, d); err != nil {
			return d, fmt.Errorf("record dispense charge: %w", err)
		}
	}
	return d, nil
}

func (s *Service) GetDispense(ctx context.Context, id uuid.UUID) (*Dispense, error) {
	return s.dispenses.GetByID(ctx, id)
}

func (s *Service) GetDispenseByNumber(ctx context.Context, dispenseNumber string) (*Dispense, error) {
	return s.dispenses.GetByNumber(ctx, dispenseNumber)
}

func (s *Service) ListDispensesByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Dispense, error) {
	return s.dispenses.ListByPrescription(ctx, prescriptionID)
}
