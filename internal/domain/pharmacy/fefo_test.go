package pharmacy

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testNow = time.Date(2024, time.December, 1, 12, 0, 0, 0, time.UTC)

func batch(batchNumber string, expiry time.Time, qty int) *InventoryBatch {
	return &InventoryBatch{
		ID:           uuid.New(),
		MedicineID:   uuid.New(),
		MedicineName: "Paracetamol 500mg",
		BatchNumber:  batchNumber,
		ExpiryDate:   expiry,
		Quantity:     qty,
		UnitPrice:    2.5,
		Status:       BatchActive,
		Version:      1,
	}
}

func TestAllocateFEFOEarliestExpiryFirst(t *testing.T) {
	batches := []*InventoryBatch{
		batch("B2", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), 10),
		batch("B1", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 5),
	}

	allocs, err := AllocateFEFO(batches, 8, testNow)
	if err != nil {
		t.Fatalf("AllocateFEFO: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("allocations = %d, want 2", len(allocs))
	}
	if allocs[0].Batch.BatchNumber != "B1" || allocs[0].Quantity != 5 {
		t.Errorf("first allocation = %s/%d, want B1/5", allocs[0].Batch.BatchNumber, allocs[0].Quantity)
	}
	if allocs[1].Batch.BatchNumber != "B2" || allocs[1].Quantity != 3 {
		t.Errorf("second allocation = %s/%d, want B2/3", allocs[1].Batch.BatchNumber, allocs[1].Quantity)
	}
}

func TestAllocateFEFOSingleBatchSuffices(t *testing.T) {
	batches := []*InventoryBatch{
		batch("B1", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 20),
	}
	allocs, err := AllocateFEFO(batches, 8, testNow)
	if err != nil {
		t.Fatalf("AllocateFEFO: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Quantity != 8 {
		t.Errorf("allocations = %+v", allocs)
	}
}

func TestAllocateFEFOSkipsUndispensableBatches(t *testing.T) {
	future := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	blocked := batch("BLOCKED", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 50)
	blocked.Status = BatchBlocked
	recalled := batch("RECALLED", time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), 50)
	recalled.Status = BatchRecalled
	expired := batch("EXPIRED", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), 50)
	empty := batch("EMPTY", future, 0)
	good := batch("GOOD", future, 10)

	allocs, err := AllocateFEFO([]*InventoryBatch{blocked, recalled, expired, empty, good}, 10, testNow)
	if err != nil {
		t.Fatalf("AllocateFEFO: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Batch.BatchNumber != "GOOD" {
		t.Errorf("allocations = %+v", allocs)
	}
}

func TestAllocateFEFOInsufficientStock(t *testing.T) {
	batches := []*InventoryBatch{
		batch("B1", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 3),
	}
	_, err := AllocateFEFO(batches, 10, testNow)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestAvailableQuantity(t *testing.T) {
	future := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	blocked := batch("B", future, 100)
	blocked.Status = BatchBlocked

	got := AvailableQuantity([]*InventoryBatch{
		batch("A", future, 5),
		blocked,
		batch("C", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 7),
	}, testNow)
	if got != 5 {
		t.Errorf("available = %d, want 5", got)
	}
}
