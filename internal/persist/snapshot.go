// Package persist owns the cold-start / failure-path snapshot of the order
// cache. It is a fallback, not a source of truth: the snapshot is read once
// at startup or after a failed refresh, and only when it is fresh enough.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
)

//go:generate mockgen -source internal/persist/snapshot.go -destination=internal/persist/snapshot_mock_test.go -package=persist

const snapshotKey = "orders/snapshot"

// KV is the durable local key/value store boundary.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type storedSnapshot struct {
	CapturedAt time.Time             `json:"captured_at"`
	Buckets    domain.OrdersByBucket `json:"buckets"`
}

// Adapter serializes cache snapshots into the KV store and reads them back
// under a freshness gate.
type Adapter struct {
	kv     KV
	logger *zap.Logger
	now    func() time.Time
}

func NewAdapter(kv KV, logger *zap.Logger) *Adapter {
	return &Adapter{kv: kv, logger: logger, now: time.Now}
}

// Write stores the snapshot with a capture timestamp. Called after every
// successful reconciliation; the caller treats failures as best-effort.
func (a *Adapter) Write(ctx context.Context, buckets domain.OrdersByBucket) error {
	raw, err := json.Marshal(storedSnapshot{
		CapturedAt: a.now().UTC(),
		Buckets:    buckets,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := a.kv.Set(ctx, snapshotKey, raw); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// ReadIfFresh returns the persisted snapshot when one exists and is younger
// than maxAge. A stale snapshot, a missing key, and malformed stored data
// all come back as ok=false: malformed data is a cache miss, not an error
// the caller can act on.
func (a *Adapter) ReadIfFresh(ctx context.Context, maxAge time.Duration) (domain.OrdersByBucket, bool, error) {
	raw, found, err := a.kv.Get(ctx, snapshotKey)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var stored storedSnapshot
	if err := json.Unmarshal(raw, &stored); err != nil {
		a.logger.Warn("discarding malformed persisted snapshot", zap.Error(err))
		return nil, false, nil
	}
	if stored.CapturedAt.IsZero() {
		a.logger.Warn("discarding persisted snapshot without capture timestamp")
		return nil, false, nil
	}

	age := a.now().Sub(stored.CapturedAt)
	if age >= maxAge {
		a.logger.Info("persisted snapshot too old to use",
			zap.Duration("age", age),
			zap.Duration("max_age", maxAge),
		)
		return nil, false, nil
	}

	return stored.Buckets, true, nil
}
