package quota

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEntry struct {
	value    []byte
	revision uint64
}

// memKV is an in-memory KVStore with bucket-wide revisions.
type memKV struct {
	mu       sync.Mutex
	entries  map[string]memEntry
	revision uint64

	// beforeUpdate runs once before the first Update is applied.
	beforeUpdate func(m *memKV, key string)
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]memEntry)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, 0, ErrKeyNotFound
	}
	return e.value, e.revision, nil
}

func (m *memKV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return 0, ErrRevisionConflict
	}
	return m.put(key, value), nil
}

func (m *memKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hook := m.beforeUpdate; hook != nil {
		m.beforeUpdate = nil
		hook(m, key)
	}
	e, ok := m.entries[key]
	if !ok || e.revision != revision {
		return 0, ErrRevisionConflict
	}
	return m.put(key, value), nil
}

func (m *memKV) put(key string, value []byte) uint64 {
	m.revision++
	m.entries[key] = memEntry{value: value, revision: m.revision}
	return m.revision
}

func (m *memKV) count(t *testing.T, key string) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := strconv.Atoi(string(m.entries[key].value))
	require.NoError(t, err)
	return n
}

func TestKVLedgerFirstMessageOfDay(t *testing.T) {
	kv := newMemKV()
	ledger := NewKVLedger(kv, FreeDailyLimit)

	res, err := ledger.TryConsume(context.Background(), "u1", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, Result{Allowed: true, Used: 1, Limit: 30}, res)
	assert.Equal(t, 1, kv.count(t, usageKey("u1", "2026-03-14")))
}

func TestKVLedgerDeniesAtLimit(t *testing.T) {
	kv := newMemKV()
	key := usageKey("u1", "2026-03-14")
	kv.put(key, encodeCount(30))
	ledger := NewKVLedger(kv, FreeDailyLimit)

	res, err := ledger.TryConsume(context.Background(), "u1", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, Result{Allowed: false, Used: 30, Limit: 30}, res)
	assert.Equal(t, 30, kv.count(t, key))
}

func TestKVLedgerConcurrentLastSlot(t *testing.T) {
	kv := newMemKV()
	key := usageKey("u1", "2026-03-14")
	kv.put(key, encodeCount(29))
	ledger := NewKVLedger(kv, FreeDailyLimit)

	const senders = 8
	var allowed int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.TryConsume(context.Background(), "u1", "2026-03-14")
			assert.NoError(t, err)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed)
	assert.Equal(t, 30, kv.count(t, key))
}

func TestKVLedgerRetriesOnConflict(t *testing.T) {
	kv := newMemKV()
	key := usageKey("u1", "2026-03-14")
	kv.put(key, encodeCount(28))
	kv.beforeUpdate = func(m *memKV, key string) {
		m.put(key, encodeCount(29))
	}
	ledger := NewKVLedger(kv, FreeDailyLimit)

	res, err := ledger.TryConsume(context.Background(), "u1", "2026-03-14")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 30, res.Used)
	assert.Equal(t, 30, kv.count(t, key))
}

func TestKVLedgerDayRollover(t *testing.T) {
	kv := newMemKV()
	kv.put(usageKey("u1", "2026-03-14"), encodeCount(30))
	ledger := NewKVLedger(kv, FreeDailyLimit)

	res, err := ledger.TryConsume(context.Background(), "u1", "2026-03-15")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Used)
}

type failingKV struct{ memKV }

func (f *failingKV) Get(context.Context, string) ([]byte, uint64, error) {
	return nil, 0, errors.New("bucket unavailable")
}

func TestKVLedgerPropagatesStoreErrors(t *testing.T) {
	ledger := NewKVLedger(&failingKV{}, FreeDailyLimit)

	_, err := ledger.TryConsume(context.Background(), "u1", "2026-03-14")
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestUsageKeyIsSubjectSafe(t *testing.T) {
	key := usageKey("user@example.com", "2026-03-14")
	assert.Regexp(t, `^[-_=.a-zA-Z0-9]+$`, key)
}

func TestKVLedgerUsage(t *testing.T) {
	kv := newMemKV()
	kv.put(usageKey("u1", "2026-03-14"), encodeCount(7))
	ledger := NewKVLedger(kv, FreeDailyLimit)

	used, err := ledger.Usage(context.Background(), "u1", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 7, used)

	used, err = ledger.Usage(context.Background(), "u2", "2026-03-14")
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, FreeDailyLimit, ledger.Limit())
}
