package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
)

func frozenAdapter(kv KV, at time.Time) *Adapter {
	a := NewAdapter(kv, zap.NewNop())
	a.now = func() time.Time { return at }
	return a
}

func encodedSnapshot(t *testing.T, capturedAt time.Time, buckets domain.OrdersByBucket) []byte {
	t.Helper()
	raw, err := json.Marshal(storedSnapshot{CapturedAt: capturedAt, Buckets: buckets})
	require.NoError(t, err)
	return raw
}

func TestWriteStoresTimestampedSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	kv := NewMockKV(ctrl)

	var written []byte
	kv.EXPECT().Set(gomock.Any(), snapshotKey, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, value []byte) error {
			written = value
			return nil
		})

	a := frozenAdapter(kv, now)
	buckets := domain.OrdersByBucket{
		domain.StatusPending: {{ID: "O1", Status: domain.StatusPending}},
	}
	require.NoError(t, a.Write(context.Background(), buckets))

	var stored storedSnapshot
	require.NoError(t, json.Unmarshal(written, &stored))
	require.Equal(t, now, stored.CapturedAt)
	require.Len(t, stored.Buckets[domain.StatusPending], 1)
}

func TestWriteReportsStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := NewMockKV(ctrl)
	kv.EXPECT().Set(gomock.Any(), snapshotKey, gomock.Any()).Return(errors.New("disk full"))

	a := NewAdapter(kv, zap.NewNop())
	err := a.Write(context.Background(), domain.OrdersByBucket{})
	require.Error(t, err)
}

func TestReadIfFresh_FreshnessGate(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	maxAge := 10 * time.Minute
	buckets := domain.OrdersByBucket{
		domain.StatusReady: {{ID: "O7", Status: domain.StatusReady}},
	}

	testCases := []struct {
		name       string
		capturedAt time.Time
		wantOK     bool
	}{
		{name: "5 minutes old is loaded", capturedAt: now.Add(-5 * time.Minute), wantOK: true},
		{name: "11 minutes old is rejected", capturedAt: now.Add(-11 * time.Minute), wantOK: false},
		{name: "exactly at the window is rejected", capturedAt: now.Add(-maxAge), wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			kv := NewMockKV(ctrl)
			kv.EXPECT().Get(gomock.Any(), snapshotKey).
				Return(encodedSnapshot(t, tc.capturedAt, buckets), true, nil)

			a := frozenAdapter(kv, now)
			got, ok, err := a.ReadIfFresh(context.Background(), maxAge)
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				require.Equal(t, "O7", got[domain.StatusReady][0].ID)
			} else {
				require.Nil(t, got)
			}
		})
	}
}

func TestReadIfFresh_MissingKeyIsAbsent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := NewMockKV(ctrl)
	kv.EXPECT().Get(gomock.Any(), snapshotKey).Return(nil, false, nil)

	a := NewAdapter(kv, zap.NewNop())
	_, ok, err := a.ReadIfFresh(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadIfFresh_MalformedDataIsAbsent(t *testing.T) {
	testCases := []struct {
		name string
		raw  []byte
	}{
		{name: "not json", raw: []byte("{garbage")},
		{name: "missing capture timestamp", raw: []byte(`{"buckets":{}}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			kv := NewMockKV(ctrl)
			kv.EXPECT().Get(gomock.Any(), snapshotKey).Return(tc.raw, true, nil)

			a := NewAdapter(kv, zap.NewNop())
			_, ok, err := a.ReadIfFresh(context.Background(), 10*time.Minute)
			require.NoError(t, err, "malformed data is a cache miss, not an error")
			require.False(t, ok)
		})
	}
}

func TestReadIfFresh_StoreErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := NewMockKV(ctrl)
	kv.EXPECT().Get(gomock.Any(), snapshotKey).Return(nil, false, errors.New("io error"))

	a := NewAdapter(kv, zap.NewNop())
	_, ok, err := a.ReadIfFresh(context.Background(), 10*time.Minute)
	require.Error(t, err)
	require.False(t, ok)
}
