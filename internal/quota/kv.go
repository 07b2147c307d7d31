package quota

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrKeyNotFound is returned by a KVStore when the key does not exist.
	ErrKeyNotFound = errors.New("quota: key not found")

	// ErrRevisionConflict is returned by a KVStore when a create or update
	// lost a race against another writer.
	ErrRevisionConflict = errors.New("quota: revision conflict")
)

// maxCASAttempts bounds the compare-and-swap retries of a single consume.
const maxCASAttempts = 16

// KVStore is a versioned key/value bucket.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, uint64, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
}

// KVLedger keeps daily usage in a versioned bucket and increments it with a
// compare-and-swap loop.
type KVLedger struct {
	kv    KVStore
	limit int
}

// NewKVLedger creates a ledger over kv with the given daily limit.
func NewKVLedger(kv KVStore, limit int) *KVLedger {
	return &KVLedger{kv: kv, limit: limit}
}

// TryConsume implements Ledger.
func (l *KVLedger) TryConsume(ctx context.Context, userID, day string) (Result, error) {
	key := usageKey(userID, day)

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		raw, revision, err := l.kv.Get(ctx, key)
		switch {
		case errors.Is(err, ErrKeyNotFound):
			if l.limit <= 0 {
				return Result{Allowed: false, Used: 0, Limit: l.limit}, nil
			}
			if _, err := l.kv.Create(ctx, key, encodeCount(1)); err != nil {
				if errors.Is(err, ErrRevisionConflict) {
					continue
				}
				return Result{}, fmt.Errorf("create usage key: %w", err)
			}
			return Result{Allowed: true, Used: 1, Limit: l.limit}, nil

		case err != nil:
			return Result{}, fmt.Errorf("read usage key: %w", err)
		}

		used, err := strconv.Atoi(string(raw))
		if err != nil {
			return Result{}, fmt.Errorf("decode usage key %q: %w", key, err)
		}
		if used >= l.limit {
			return Result{Allowed: false, Used: used, Limit: l.limit}, nil
		}

		if _, err := l.kv.Update(ctx, key, encodeCount(used+1), revision); err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				continue
			}
			return Result{}, fmt.Errorf("update usage key: %w", err)
		}
		return Result{Allowed: true, Used: used + 1, Limit: l.limit}, nil
	}

	return Result{}, fmt.Errorf("consume daily usage: gave up after %d conflicting attempts", maxCASAttempts)
}

// Usage implements Ledger.
func (l *KVLedger) Usage(ctx context.Context, userID, day string) (int, error) {
	raw, _, err := l.kv.Get(ctx, usageKey(userID, day))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage key: %w", err)
	}
	return strconv.Atoi(string(raw))
}

// Limit implements Ledger.
func (l *KVLedger) Limit() int { return l.limit }

// usageKey builds a bucket key that only uses characters valid in NATS keys.
func usageKey(userID, day string) string {
	return day + "." + base64.RawURLEncoding.EncodeToString([]byte(userID))
}

func encodeCount(n int) []byte {
	return []byte(strconv.Itoa(n))
}
