package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/character-chat/internal/model"
)

const consumeSQL = `INSERT INTO daily_usage (user_id, day, used, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (user_id, day) DO UPDATE
SET used = daily_usage.used + 1, updated_at = ?
WHERE daily_usage.used < ?
RETURNING used`

// SQLLedger keeps daily usage in the daily_usage table and relies on a
// single upsert statement for atomicity.
type SQLLedger struct {
	db    *gorm.DB
	limit int
	now   func() time.Time
}

// NewSQLLedger creates a ledger over db with the given daily limit.
func NewSQLLedger(db *gorm.DB, limit int) *SQLLedger {
	return &SQLLedger{db: db, limit: limit, now: time.Now}
}

// TryConsume implements Ledger.
func (l *SQLLedger) TryConsume(ctx context.Context, userID, day string) (Result, error) {
	if l.limit <= 0 {
		return Result{Allowed: false, Used: 0, Limit: l.limit}, nil
	}

	now := l.now().UTC()
	var used []int
	err := l.db.WithContext(ctx).
		Raw(consumeSQL, userID, day, now, now, l.limit).
		Scan(&used).Error
	if err != nil {
		return Result{}, fmt.Errorf("consume daily usage: %w", err)
	}

	if len(used) == 1 {
		return Result{Allowed: true, Used: used[0], Limit: l.limit}, nil
	}

	current, err := l.Usage(ctx, userID, day)
	if err != nil {
		current = l.limit
	}
	return Result{Allowed: false, Used: current, Limit: l.limit}, nil
}

// Usage returns the stored count for a user and day, zero when absent.
func (l *SQLLedger) Usage(ctx context.Context, userID, day string) (int, error) {
	var row model.DailyUsage
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daily usage: %w", err)
	}
	return row.Used, nil
}

// Limit implements Ledger.
func (l *SQLLedger) Limit() int { return l.limit }

// Prune deletes usage rows for days before the given day key.
func (l *SQLLedger) Prune(ctx context.Context, before string) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("day < ?", before).
		Delete(&model.DailyUsage{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune daily usage: %w", res.Error)
	}
	return res.RowsAffected, nil
}
