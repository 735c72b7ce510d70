package billing

import (
	"fmt"
	"time"
)

// FormatBillNumber renders a sequence value as a human-readable bill number:
// BIL + 4-digit year + 2-digit month + 6-digit zero-padded sequence. The
// sequence itself comes from an atomic per-month counter, so concurrent bill
// creation cannot mint duplicates.
func FormatBillNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("BIL%04d%02d%06d", t.Year(), int(t.Month()), seq)
}
