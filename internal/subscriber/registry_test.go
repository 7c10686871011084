package subscriber

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
)

func TestNotifyAll_RegistrationOrder(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var calls []string
	r.Add(func(domain.OrdersByBucket) { calls = append(calls, "first") })
	r.Add(func(domain.OrdersByBucket) { calls = append(calls, "second") })
	r.Add(func(domain.OrdersByBucket) { calls = append(calls, "third") })

	r.NotifyAll(domain.OrdersByBucket{})

	require.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestNotifyAll_PanicDoesNotStopFanout(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var after int
	r.Add(func(domain.OrdersByBucket) { panic("ui binding blew up") })
	r.Add(func(domain.OrdersByBucket) { after++ })

	require.NotPanics(t, func() {
		r.NotifyAll(domain.OrdersByBucket{})
	})
	require.Equal(t, 1, after)
}

func TestUnsubscribeIsImmediate(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var calls int
	unsub := r.Add(func(domain.OrdersByBucket) { calls++ })

	r.NotifyAll(domain.OrdersByBucket{})
	unsub()
	r.NotifyAll(domain.OrdersByBucket{})

	require.Equal(t, 1, calls)
	require.Equal(t, 0, r.Len())

	// Unsubscribing twice is harmless.
	require.NotPanics(t, unsub)
}

func TestEveryCommitTriggersFullCycle(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var calls int
	r.Add(func(domain.OrdersByBucket) { calls++ })

	for i := 0; i < 5; i++ {
		r.NotifyAll(domain.OrdersByBucket{})
	}
	require.Equal(t, 5, calls)
}
