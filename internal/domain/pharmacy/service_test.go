package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memBatchRepo struct {
	batches map[uuid.UUID]*InventoryBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[uuid.UUID]*InventoryBatch)}
}

func (r *memBatchRepo) Create(_ context.Context, b *InventoryBatch) error {
	b.ID = uuid.New()
	b.Version = 1
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *memBatchRepo) GetByID(_ context.Context, id uuid.UUID) (*InventoryBatch, error) {
	b, ok := r.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBatchRepo) Update(_ context.Context, b *InventoryBatch) error {
	stored, ok := r.batches[b.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != b.Version {
		return ErrVersionConflict
	}
	b.Version++
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *memBatchRepo) ListByMedicine(_ context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error) {
	var out []*InventoryBatch
	for _, b := range r.batches {
		if b.MedicineID == medicineID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memBatchRepo) List(_ context.Context, status string, limit, offset int) ([]*InventoryBatch, int, error) {
	var out []*InventoryBatch
	for _, b := range r.batches {
		if status == "" || b.Status == status {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memBatchRepo) DecrementBatch(_ context.Context, id uuid.UUID, quantity, version int) error {
	b, ok := r.batches[id]
	if !ok {
		return ErrNotFound
	}
	if b.Version != version || b.Quantity < quantity {
		return ErrVersionConflict
	}
	b.Quantity -= quantity
	b.Version++
	return nil
}

type memPrescriptionRepo struct {
	prescriptions map[uuid.UUID]*Prescription
}

func newMemPrescriptionRepo() *memPrescriptionRepo {
	return &memPrescriptionRepo{prescriptions: make(map[uuid.UUID]*Prescription)}
}

func copyPrescription(p *Prescription) *Prescription {
	cp := *p
	cp.Items = append([]PrescriptionItem(nil), p.Items...)
	return &cp
}

func (r *memPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	for i := range p.Items {
		p.Items[i].ID = uuid.New()
		p.Items[i].PrescriptionID = p.ID
	}
	r.prescriptions[p.ID] = copyPrescription(p)
	return nil
}

func (r *memPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := r.prescriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPrescription(p), nil
}

func (r *memPrescriptionRepo) Update(_ context.Context, p *Prescription) error {
	if _, ok := r.prescriptions[p.ID]; !ok {
		return ErrNotFound
	}
	r.prescriptions[p.ID] = copyPrescription(p)
	return nil
}

func (r *memPrescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range r.prescriptions {
		if p.PatientID == patientID {
			out = append(out, copyPrescription(p))
		}
	}
	return out, len(out), nil
}

type memDispenseRepo struct {
	dispenses map[uuid.UUID]*Dispense
	seqs      map[[3]int]int64
}

func newMemDispenseRepo() *memDispenseRepo {
	return &memDispenseRepo{dispenses: make(map[uuid.UUID]*Dispense), seqs: make(map[[3]int]int64)}
}

func (r *memDispenseRepo) Create(_ context.Context, d *Dispense) error {
	d.ID = uuid.New()
	r.dispenses[d.ID] = d
	return nil
}

func (r *memDispenseRepo) GetByID(_ context.Context, id uuid.UUID) (*Dispense, error) {
	d, ok := r.dispenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (r *memDispenseRepo) GetByNumber(_ context.Context, number string) (*Dispense, error) {
	for _, d := range r.dispenses {
		if d.DispenseNumber == number {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memDispenseRepo) ListByPrescription(_ context.Context, prescriptionID uuid.UUID) ([]*Dispense, error) {
	var out []*Dispense
	for _, d := range r.dispenses {
		if d.PrescriptionID == prescriptionID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memDispenseRepo) NextSequence(_ context.Context, year, month, day int) (int64, error) {
	key := [3]int{year, month, day}
	r.seqs[key]++
	return r.seqs[key], nil
}

type blockingSafetyChecker struct{ reason string }

func (c blockingSafetyChecker) CheckDispense(context.Context, *Prescription) error {
	return errors.New(c.reason)
}

type recordingCharges struct {
	recorded []*Dispense
	fail     bool
}

func (c *recordingCharges) RecordDispenseCharge(_ context.Context, d *Dispense) error {
	if c.fail {
		return errors.New("billing unavailable")
	}
	c.recorded = append(c.recorded, d)
	return nil
}

type pharmacyFixture struct {
	svc           *Service
	batches       *memBatchRepo
	prescriptions *memPrescriptionRepo
	dispenses     *memDispenseRepo
}

func newPharmacyFixture() *pharmacyFixture {
	batches := newMemBatchRepo()
	prescriptions := newMemPrescriptionRepo()
	dispenses := newMemDispenseRepo()
	svc := NewService(batches, prescriptions, dispenses)
	svc.now = func() time.Time { return testNow }
	return &pharmacyFixture{svc: svc, batches: batches, prescriptions: prescriptions, dispenses: dispenses}
}

func (f *pharmacyFixture) addBatch(t *testing.T, medicineID uuid.UUID, batchNumber string, expiry time.Time, qty int, price float64) *InventoryBatch {
	t.Helper()
	b := &InventoryBatch{
		MedicineID:   medicineID,
		MedicineName: "Paracetamol 500mg",
		BatchNumber:  batchNumber,
		ExpiryDate:   expiry,
		Quantity:     qty,
		UnitPrice:    price,
	}
	if err := f.svc.AddBatch(context.Background(), b); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	return b
}

func (f *pharmacyFixture) newPrescription(t *testing.T, medicineID uuid.UUID, qty int) *Prescription {
	t.Helper()
	p := &Prescription{
		PatientID:    uuid.New(),
		PrescribedBy: "dr-1",
		Items: []PrescriptionItem{
			{MedicineID: medicineID, MedicineName: "Paracetamol 500mg", Dosage: "500mg", Frequency: "TID", Duration: "5 days", Quantity: qty},
		},
	}
	if err := f.svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}
	return p
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// -- inventory --

func TestAddBatchValidation(t *testing.T) {
	f := newPharmacyFixture()
	future := testNow.AddDate(0, 6, 0)

	cases := []struct {
		name  string
		batch InventoryBatch
	}{
		{"missing medicine", InventoryBatch{MedicineName: "x", BatchNumber: "B1", ExpiryDate: future, Quantity: 1}},
		{"zero quantity", InventoryBatch{MedicineID: uuid.New(), MedicineName: "x", BatchNumber: "B1", ExpiryDate: future, Quantity: 0}},
		{"negative price", InventoryBatch{MedicineID: uuid.New(), MedicineName: "x", BatchNumber: "B1", ExpiryDate: future, Quantity: 1, UnitPrice: -1}},
		{"expired", InventoryBatch{MedicineID: uuid.New(), MedicineName: "x", BatchNumber: "B1", ExpiryDate: testNow.AddDate(-1, 0, 0), Quantity: 1}},
	}
	for _, tc := range cases {
		b := tc.batch
		if err := f.svc.AddBatch(context.Background(), &b); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}

func TestBlockAndReactivateBatch(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	b := f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 10, 2)

	blocked, err := f.svc.BlockBatch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("BlockBatch: %v", err)
	}
	if blocked.Status != BatchBlocked {
		t.Errorf("status = %q", blocked.Status)
	}

	qty, err := f.svc.StockForMedicine(context.Background(), medicineID)
	if err != nil {
		t.Fatalf("StockForMedicine: %v", err)
	}
	if qty != 0 {
		t.Errorf("blocked stock still counted: %d", qty)
	}

	reactivated, err := f.svc.ReactivateBatch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("ReactivateBatch: %v", err)
	}
	if reactivated.Status != BatchActive {
		t.Errorf("status = %q", reactivated.Status)
	}
}

func TestRecalledBatchIsTerminal(t *testing.T) {
	f := newPharmacyFixture()
	b := f.addBatch(t, uuid.New(), "B1", testNow.AddDate(0, 6, 0), 10, 2)

	if _, err := f.svc.RecallBatch(context.Background(), b.ID); err != nil {
		t.Fatalf("RecallBatch: %v", err)
	}
	if _, err := f.svc.ReactivateBatch(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reactivate recalled: err = %v, want ErrInvalidState", err)
	}
	if _, err := f.svc.BlockBatch(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("block recalled: err = %v, want ErrInvalidState", err)
	}
}

// -- dispensing --

func TestDispenseDrawsEarliestExpiryFirst(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	early := f.addBatch(t, medicineID, "EARLY", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 5, 2)
	late := f.addBatch(t, medicineID, "LATE", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), 10, 2)

	p := f.newPrescription(t, medicineID, 8)
	d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err != nil {
		t.Fatalf("DispensePrescription: %v", err)
	}

	if d.Status != DispenseCompleted {
		t.Errorf("dispense status = %q", d.Status)
	}
	if len(d.Items) != 1 || d.Items[0].DispensedQuantity != 8 {
		t.Fatalf("items = %+v", d.Items)
	}
	allocs := d.Items[0].Batches
	if len(allocs) != 2 || allocs[0].BatchNumber != "EARLY" || allocs[0].Quantity != 5 ||
		allocs[1].BatchNumber != "LATE" || allocs[1].Quantity != 3 {
		t.Errorf("allocations = %+v", allocs)
	}

	gotEarly, _ := f.svc.GetBatch(context.Background(), early.ID)
	gotLate, _ := f.svc.GetBatch(context.Background(), late.ID)
	if gotEarly.Quantity != 0 || gotLate.Quantity != 7 {
		t.Errorf("stock after dispense: early=%d late=%d", gotEarly.Quantity, gotLate.Quantity)
	}

	if !near(d.TotalAmount, 16) || !near(d.NetAmount, 16) {
		t.Errorf("totals: %v/%v, want 16/16", d.TotalAmount, d.NetAmount)
	}
	if !strings.HasPrefix(d.DispenseNumber, "DIS20241201") {
		t.Errorf("dispense number = %q", d.DispenseNumber)
	}

	updated, _ := f.svc.GetPrescription(context.Background(), p.ID)
	if updated.Status != PrescriptionDispensed {
		t.Errorf("prescription status = %q", updated.Status)
	}
}

func TestDispensePartialWhenStockShort(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 3, 5)

	p := f.newPrescription(t, medicineID, 10)
	d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err != nil {
		t.Fatalf("DispensePrescription: %v", err)
	}
	if d.Status != DispensePartial {
		t.Errorf("dispense status = %q", d.Status)
	}
	if d.Items[0].DispensedQuantity != 3 {
		t.Errorf("dispensed = %d, want 3", d.Items[0].DispensedQuantity)
	}

	updated, _ := f.svc.GetPrescription(context.Background(), p.ID)
	if updated.Status != PrescriptionPartiallyDispensed {
		t.Errorf("prescription status = %q", updated.Status)
	}
	if updated.Items[0].DispensedQty != 3 {
		t.Errorf("dispensed qty on item = %d", updated.Items[0].DispensedQty)
	}

	// Restock and finish the prescription.
	f.addBatch(t, medicineID, "B2", testNow.AddDate(0, 8, 0), 20, 5)
	d2, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err != nil {
		t.Fatalf("second dispense: %v", err)
	}
	if d2.Status != DispenseCompleted || d2.Items[0].DispensedQuantity != 7 {
		t.Errorf("second dispense = %+v", d2)
	}
	final, _ := f.svc.GetPrescription(context.Background(), p.ID)
	if final.Status != PrescriptionDispensed {
		t.Errorf("final prescription status = %q", final.Status)
	}
}

func TestDispenseFailsWithNoStock(t *testing.T) {
	f := newPharmacyFixture()
	p := f.newPrescription(t, uuid.New(), 5)

	_, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	unchanged, _ := f.svc.GetPrescription(context.Background(), p.ID)
	if unchanged.Status != PrescriptionActive {
		t.Errorf("prescription status = %q", unchanged.Status)
	}
}

func TestDispenseSkipsBlockedAndExpiredStock(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()

	blocked := f.addBatch(t, medicineID, "BLOCKED", testNow.AddDate(0, 6, 0), 50, 1)
	if _, err := f.svc.BlockBatch(context.Background(), blocked.ID); err != nil {
		t.Fatalf("BlockBatch: %v", err)
	}
	good := f.addBatch(t, medicineID, "GOOD", testNow.AddDate(0, 3, 0), 5, 1)

	p := f.newPrescription(t, medicineID, 5)
	d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err != nil {
		t.Fatalf("DispensePrescription: %v", err)
	}
	if len(d.Items[0].Batches) != 1 || d.Items[0].Batches[0].BatchID != good.ID {
		t.Errorf("allocations = %+v", d.Items[0].Batches)
	}
	after, _ := f.svc.GetBatch(context.Background(), blocked.ID)
	if after.Quantity != 50 {
		t.Errorf("blocked batch touched: %d", after.Quantity)
	}
}

func TestDispenseBlockedBySafetyCheck(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	b := f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 10, 2)
	f.svc.SetSafetyChecker(blockingSafetyChecker{reason: "severe interaction with warfarin"})

	p := f.newPrescription(t, medicineID, 5)
	_, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if !errors.Is(err, ErrSafetyBlocked) {
		t.Fatalf("err = %v, want ErrSafetyBlocked", err)
	}
	if !strings.Contains(err.Error(), "warfarin") {
		t.Errorf("error should carry the safety reason: %v", err)
	}
	after, _ := f.svc.GetBatch(context.Background(), b.ID)
	if after.Quantity != 10 {
		t.Errorf("stock moved despite safety block: %d", after.Quantity)
	}
}

func TestDispenseRejectsWrongPrescriptionState(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 10, 2)

	p := f.newPrescription(t, medicineID, 5)
	if _, err := f.svc.CancelPrescription(context.Background(), p.ID); err != nil {
		t.Fatalf("CancelPrescription: %v", err)
	}
	_, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestDispenseNumbersIncrementPerDay(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 100, 1)

	var numbers []string
	for i := 0; i < 3; i++ {
		p := f.newPrescription(t, medicineID, 1)
		d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
		if err != nil {
			t.Fatalf("dispense %d: %v", i, err)
		}
		numbers = append(numbers, d.DispenseNumber)
	}
	for i, n := range numbers {
		want := fmt.Sprintf("DIS20241201%05d", i+1)
		if n != want {
			t.Errorf("number %d = %q, want %q", i, n, want)
		}
	}
}

func TestDispenseTriggersChargeRecorder(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 10, 3)
	charges := &recordingCharges{}
	f.svc.SetChargeRecorder(charges)

	p := f.newPrescription(t, medicineID, 4)
	d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err != nil {
		t.Fatalf("DispensePrescription: %v", err)
	}
	if len(charges.recorded) != 1 || charges.recorded[0].DispenseNumber != d.DispenseNumber {
		t.Errorf("charge recorder calls = %+v", charges.recorded)
	}
	if !near(charges.recorded[0].NetAmount, 12) {
		t.Errorf("net amount = %v, want 12", charges.recorded[0].NetAmount)
	}
}

func TestDispensePersistsWhenChargeFails(t *testing.T) {
	f := newPharmacyFixture()
	medicineID := uuid.New()
	b := f.addBatch(t, medicineID, "B1", testNow.AddDate(0, 6, 0), 10, 3)
	f.svc.SetChargeRecorder(&recordingCharges{fail: true})

	p := f.newPrescription(t, medicineID, 4)
	d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err == nil {
		t.Fatal("expected charge failure to propagate")
	}
	if d == nil {
		t.Fatal("dispense should come back alongside the charge error")
	}

	// Stock decrement and dispense record survive the billing failure.
	after, _ := f.svc.GetBatch(context.Background(), b.ID)
	if after.Quantity != 6 {
		t.Errorf("stock = %d, want 6", after.Quantity)
	}
	if _, err := f.svc.GetDispenseByNumber(context.Background(), d.DispenseNumber); err != nil {
		t.Errorf("dispense not persisted: %v", err)
	}
}

func TestMultiLineDispenseMixedAvailability(t *testing.T) {
	f := newPharmacyFixture()
	medA := uuid.New()
	medB := uuid.New()
	f.addBatch(t, medA, "A1", testNow.AddDate(0, 6, 0), 10, 2)
	// No stock at all for medicine B.

	p := &Prescription{
		PatientID:    uuid.New(),
		PrescribedBy: "dr-1",
		Items: []PrescriptionItem{
			{MedicineID: medA, MedicineName: "Paracetamol 500mg", Dosage: "500mg", Frequency: "TID", Duration: "3 days", Quantity: 9},
			{MedicineID: medB, MedicineName: "Amoxicillin 250mg", Dosage: "250mg", Frequency: "BID", Duration: "5 days", Quantity: 10},
		},
	}
	if err := f.svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}

	d, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if err != nil {
		t.Fatalf("DispensePrescription: %v", err)
	}
	if d.Status != DispensePartial {
		t.Errorf("status = %q, want partial", d.Status)
	}
	if len(d.Items) != 1 || d.Items[0].MedicineID != medA {
		t.Errorf("items = %+v", d.Items)
	}
}

func TestDispenseWritePairUsesTxRunner(t *testing.T) {
	f := newPharmacyFixture()
	med := uuid.New()
	f.addBatch(t, med, "B1", testNow.AddDate(0, 6, 0), 10, 2)
	p := f.newPrescription(t, med, 4)

	boom := errors.New("transaction aborted")
	f.svc.SetTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return boom
	})

	_, err := f.svc.DispensePrescription(context.Background(), p.ID, "pharm-1")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the runner's error", err)
	}
	if len(f.dispenses.dispenses) != 0 {
		t.Errorf("dispense persisted despite the aborted unit")
	}
	stored, err := f.prescriptions.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != PrescriptionActive {
		t.Errorf("prescription status = %q, want %q", stored.Status, PrescriptionActive)
	}
}
