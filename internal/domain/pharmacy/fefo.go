package pharmacy

import (
	"fmt"
	"sort"
	"time"
)

// Allocation pairs a batch with the quantity drawn from it.
type Allocation struct {
	Batch    *InventoryBatch
	Quantity int
}

// dispensable reports whether a batch may supply stock at the given time.
func dispensable(b *InventoryBatch, now time.Time) bool {
	return b.Status == BatchActive && b.Quantity > 0 && b.ExpiryDate.After(now)
}

// AvailableQuantity sums the dispensable stock across batches.
func AvailableQuantity(batches []*InventoryBatch, now time.Time) int {
	total := 0
	for _, b := range batches {
		if dispensable(b, now) {
			total += b.Quantity
		}
	}
	return total
}

// AllocateFEFO spreads a requested quantity across batches, draining the
// earliest-expiring dispensable batch first. Blocked, recalled, expired, and
// empty batches are skipped. When the dispensable stock cannot cover the
// request it allocates nothing and returns ErrInsufficientStock.
func AllocateFEFO(batches []*InventoryBatch, quantity int, now time.Time) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("allocation quantity must be positive")
	}

	var usable []*InventoryBatch
	for _, b := range batches {
		if dispensable(b, now) {
			usable = append(usable, b)
		}
	}
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].ExpiryDate.Before(usable[j].ExpiryDate)
	})

	available := 0
	for _, b := range usable {
		available += b.Quantity
	}
	if available < quantity {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientStock, quantity, available)
	}

	var allocations []Allocation
	remaining := quantity
	for _, b := range usable {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, Allocation{Batch: b, Quantity: take})
		remaining -= take
	}
	return allocations, nil
}
