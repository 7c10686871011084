package subscriber

import (
	"sync"

	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
)

// Callback receives a committed cache snapshot. The snapshot is a deep copy;
// callbacks may retain it.
type Callback func(domain.OrdersByBucket)

// Registry fans committed state out to UI bindings. Callbacks are invoked
// synchronously, in registration order, on every commit; there is no
// batching or coalescing.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry
	logger  *zap.Logger
}

type entry struct {
	id uint64
	cb Callback
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Add registers a callback and returns a function that removes it. Removal
// is immediate: the callback will not be invoked by any later NotifyAll.
func (r *Registry) Add(cb Callback) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.entries = append(r.entries, entry{id: id, cb: cb})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.entries {
			if e.id == id {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				return
			}
		}
	}
}

// NotifyAll invokes every registered callback with the snapshot. A panic in
// one callback is recovered and logged; the remaining callbacks still run.
func (r *Registry) NotifyAll(snap domain.OrdersByBucket) {
	r.mu.Lock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for _, e := range entries {
		r.invoke(e, snap)
	}
}

// Len returns the number of registered callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) invoke(e entry, snap domain.OrdersByBucket) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("subscriber callback panicked",
				zap.Uint64("subscriber_id", e.id),
				zap.Any("panic", p),
			)
		}
	}()
	e.cb(snap)
}
