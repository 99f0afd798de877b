package reconcile

import (
	"fmt"
	"sync/atomic"
	"time"
)

const txTimeLayout = "20060102150405.000"

var txSequence atomic.Uint32

// NewTransactionID derives a run's transaction id from the wall clock at
// millisecond resolution followed by a four-digit process-wide sequence, so
// two runs inside the same millisecond still get distinct ids.
func NewTransactionID(now time.Time) string {
	stamp := now.Format(txTimeLayout)
	stamp = stamp[:14] + stamp[15:]
	seq := txSequence.Add(1) % 10000
	return fmt.Sprintf("%s%04d", stamp, seq)
}
