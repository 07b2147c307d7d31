// Package quota meters daily message sends for users without expanded access.
package quota

import (
	"context"
	"time"
)

// FreeDailyLimit is the default number of messages a metered user may send
// per UTC day.
const FreeDailyLimit = 30

// Result is the outcome of a consume attempt.
type Result struct {
	Allowed bool
	Used    int
	Limit   int
}

// Ledger atomically increments a user's usage for a day when it is below the
// limit. A denied attempt leaves the stored count unchanged.
type Ledger interface {
	TryConsume(ctx context.Context, userID, day string) (Result, error)

	// Usage returns the stored count without mutating it.
	Usage(ctx context.Context, userID, day string) (int, error)

	// Limit returns the daily limit enforced by the ledger.
	Limit() int
}

// DayKey returns the UTC calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

var (
	_ Ledger = (*SQLLedger)(nil)
	_ Ledger = (*KVLedger)(nil)
)
