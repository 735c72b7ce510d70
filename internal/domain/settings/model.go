package settings

import "time"

// Settings is the single system-wide configuration row. The clinical coding
// flag gates bill finalization: when enabled, a bill linked to a visit cannot
// be finalized until its coding record is approved.
type Settings struct {
	ClinicalCodingEnabled bool      `db:"clinical_coding_enabled" json:"clinical_coding_enabled"`
	Currency              string    `db:"currency" json:"currency"`
	UpdatedBy             *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}
