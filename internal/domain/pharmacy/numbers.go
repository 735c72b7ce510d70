package pharmacy

import (
	"fmt"
	"time"
)

// FormatDispenseNumber renders a sequence value as a dispense number: DIS +
// date + 5-digit zero-padded sequence. The sequence comes from an atomic
// per-day counter.
func FormatDispenseNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("DIS%04d%02d%02d%05d", t.Year(), int(t.Month()), t.Day(), seq)
}
