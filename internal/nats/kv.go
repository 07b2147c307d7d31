package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/character-chat/internal/quota"
)

// UsageBucketName is the key/value bucket holding daily usage counters.
const UsageBucketName = "daily_usage"

// UsageBucket adapts a JetStream key/value bucket to the quota ledger.
type UsageBucket struct {
	kv jetstream.KeyValue
}

// EnsureUsageBucket opens the usage bucket, creating it when missing. Keys
// expire after ttl so stale days are collected by the server.
func EnsureUsageBucket(ctx context.Context, client *Client, ttl time.Duration) (*UsageBucket, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, UsageBucketName)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      UsageBucketName,
			Description: "Per-user daily message counters",
			History:     1,
			TTL:         ttl,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open usage bucket: %w", err)
	}

	return &UsageBucket{kv: kv}, nil
}

// Get returns the value and revision of key.
func (b *UsageBucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, 0, quota.ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

// Create stores key only when it does not exist yet.
func (b *UsageBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Create(ctx, key, value)
	return rev, mapConflict(err)
}

// Update stores key only when its revision still matches.
func (b *UsageBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := b.kv.Update(ctx, key, value, revision)
	return rev, mapConflict(err)
}

func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return quota.ErrRevisionConflict
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return quota.ErrRevisionConflict
	}
	return err
}
