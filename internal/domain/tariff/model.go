package tariff

import (
	"time"

	"github.com/google/uuid"
)

// Tariff is one priced service in the hospital's rate catalog. Auto-charge
// generation looks rates up by (service_type, category); only active tariffs
// inside their effective window are considered.
type Tariff struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ServiceType   string     `db:"service_type" json:"service_type"`
	Category      string     `db:"category" json:"category"`
	Description   *string    `db:"description" json:"description,omitempty"`
	Rate          float64    `db:"rate" json:"rate"`
	Active        bool       `db:"active" json:"active"`
	EffectiveFrom time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effective_to,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Service types priced in the catalog.
const (
	ServiceBed     = "bed"
	ServiceTheatre = "operation-theatre"
	ServiceLab     = "lab"
)
