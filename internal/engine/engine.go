// Package engine orchestrates order-state reconciliation. It is the only
// writer to the order cache and arbitrates between three update sources:
// push deltas from the live channel, periodic full-refresh pulls, and the
// persisted fallback snapshot.
//
// Concurrency model: every mutation runs as a job on one loop goroutine,
// so a single mutation is atomic with respect to any other. There is
// deliberately no coordination BETWEEN jobs: a refresh pull in flight when
// a delta arrives will still apply its (by then possibly stale) result
// when it resolves. Whichever result arrives last wins, by arrival order,
// not by event timestamp. The next delta or pull converges the cache, so
// do not bolt on sequence numbers this system does not have.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/cache"
	"github.com/forkline/ordersync/internal/domain"
	"github.com/forkline/ordersync/internal/observability"
	"github.com/forkline/ordersync/internal/subscriber"
	"github.com/forkline/ordersync/internal/transport"
)

//go:generate mockgen -source internal/engine/engine.go -destination=internal/engine/engine_mock_test.go -package=engine

// Fetcher is the pull side: the remote order-query API.
type Fetcher interface {
	FetchActive(ctx context.Context, statuses []domain.Status) (domain.OrdersByBucket, error)
	FetchCancelled(ctx context.Context, limit int) ([]domain.Order, error)
}

// Store is the persisted-snapshot boundary used for cold starts and
// failed refreshes.
type Store interface {
	Write(ctx context.Context, buckets domain.OrdersByBucket) error
	ReadIfFresh(ctx context.Context, maxAge time.Duration) (domain.OrdersByBucket, bool, error)
}

// LiveChannel is what the engine needs from the transport: inbound event
// listeners plus the reconnect hook used to repair missed state.
type LiveChannel interface {
	On(event transport.Event, h transport.Handler) uint64
	OnConnect(fn func())
}

type Config struct {
	PollInterval    time.Duration
	FreshnessWindow time.Duration
	CancelledLimit  int
}

// Engine is constructed once per process in production and freshly per
// test; there is no package-level instance.
type Engine struct {
	cfg      Config
	cache    *cache.Cache
	fetcher  Fetcher
	store    Store
	registry *subscriber.Registry
	logger   *zap.Logger
	metrics  observability.Metrics

	// mu guards the cache: jobs mutate under the write lock, snapshot
	// reads (subscribe replay, HTTP reads) take the read lock.
	mu sync.RWMutex

	jobs       chan func()
	runCtx     context.Context
	cancel     context.CancelFunc
	started    bool
	startMu    sync.Mutex
	foreground atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg Config, c *cache.Cache, fetcher Fetcher, store Store, logger *zap.Logger, metrics observability.Metrics) *Engine {
	e := &Engine{
		cfg:      cfg,
		cache:    c,
		fetcher:  fetcher,
		store:    store,
		registry: subscriber.NewRegistry(logger),
		logger:   logger,
		metrics:  metrics,
		jobs:     make(chan func(), 64),
	}
	e.foreground.Store(true)
	return e
}

// Start brings the engine up: runs the job loop, attempts the cold-start
// fallback load, and starts the poll ticker. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.runCtx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop()
	}()

	if e.cfg.PollInterval > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.pollLoop()
		}()
	}

	// Cold start: last persisted snapshot, if fresh enough, becomes the
	// initial notified state.
	ctx = e.runCtx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loadFallback(ctx, "cold start")
	}()
}

// Teardown stops the loop and the ticker, then waits for in-flight work.
// startMu must not be held across the wait: workers take it in runContext
// and goWorker, and a job mid-commit would deadlock the shutdown.
func (e *Engine) Teardown() {
	e.startMu.Lock()
	if !e.started {
		e.startMu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	e.startMu.Unlock()

	cancel()
	e.wg.Wait()
}

// goWorker runs fn on a tracked goroutine. Once Teardown has flipped
// started the work is refused outright, so the WaitGroup never grows
// concurrently with Teardown's wait.
func (e *Engine) goWorker(fn func(ctx context.Context)) {
	e.startMu.Lock()
	if !e.started {
		e.startMu.Unlock()
		e.logger.Info("engine stopped, refusing new work")
		return
	}
	ctx := e.runCtx
	e.wg.Add(1)
	e.startMu.Unlock()

	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
}

// BindTransport hooks the engine into the live channel: order updates feed
// the delta path, kitchen-changed broadcasts and every (re)connect trigger
// a repair refresh.
func (e *Engine) BindTransport(ch LiveChannel) {
	ch.On(transport.EventOrderUpdate, e.HandleDelta)
	ch.On(transport.EventKitchenChanged, func([]byte) { e.RefreshOrders() })
	ch.OnConnect(e.RefreshOrders)
}

// SubscribeToOrders registers a callback and synchronously replays the
// current snapshot to it exactly once, even when nothing has ever been
// fetched (the empty default), so consumers never start undefined.
// Subscribers only ever see "best current state"; there is no error signal
// distinguishing fresh from stale.
func (e *Engine) SubscribeToOrders(cb subscriber.Callback) func() {
	unsub := e.registry.Add(cb)
	cb(e.Snapshot())
	return unsub
}

// Snapshot returns a read-only copy of the current canonical state.
func (e *Engine) Snapshot() domain.OrdersByBucket {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache.Snapshot()
}

// SetForeground gates the poll ticker: refreshes fire only while the
// console is foreground-visible. Deltas and manual refreshes are not
// affected.
func (e *Engine) SetForeground(visible bool) {
	e.foreground.Store(visible)
}

// HandleDelta ingests one push message. Anything without a recognizable id
// and status is logged and dropped before it reaches the cache.
func (e *Engine) HandleDelta(payload []byte) {
	t0 := time.Now()

	var order domain.Order
	if err := json.Unmarshal(payload, &order); err != nil {
		e.logger.Warn("dropping undecodable order delta", zap.Error(err))
		e.metrics.ObserveDelta(sinceMs(t0), false)
		return
	}
	if err := domain.ValidateDelta(&order); err != nil {
		e.logger.Warn("dropping invalid order delta",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		e.metrics.ObserveDelta(sinceMs(t0), false)
		return
	}

	e.enqueue("delta", func() {
		e.mu.Lock()
		e.cache.ApplyDelta(order)
		e.mu.Unlock()
		e.commit()
		e.metrics.ObserveDelta(sinceMs(t0), true)
	})
}

// RefreshOrders forces a full reconciliation cycle: a pull for active
// orders plus a bounded pull for recently cancelled ones, merged into one
// atomic snapshot replacement. On pull failure the engine falls back to
// the persisted snapshot if it is still inside the freshness window;
// otherwise the cache keeps its last-known state.
func (e *Engine) RefreshOrders() {
	e.goWorker(e.refresh)
}

// ApplyLocalOrder applies an optimistic local mutation for a single order,
// reflecting a UI action before the network confirms it. The next delta or
// refresh for this order overwrites it.
func (e *Engine) ApplyLocalOrder(order domain.Order) error {
	if err := domain.ValidateDelta(&order); err != nil {
		return err
	}
	order.UpdatedAt = time.Now().UTC()
	e.enqueue("local order", func() {
		e.mu.Lock()
		e.cache.ApplyDelta(order)
		e.mu.Unlock()
		e.commit()
	})
	return nil
}

// ApplyLocalItem optimistically replaces (or appends) a single line item
// on an order already in the cache, recomputing the order total.
func (e *Engine) ApplyLocalItem(orderID string, item domain.Item) error {
	if orderID == "" || item.ID == "" {
		return domain.ErrInvalidDelta
	}
	e.enqueue("local item", func() {
		e.mu.Lock()
		order, _, ok := e.cache.Get(orderID)
		if !ok {
			e.mu.Unlock()
			e.logger.Warn("local item mutation for untracked order",
				zap.String("order_id", orderID),
			)
			return
		}

		replaced := false
		for i := range order.Items {
			if order.Items[i].ID == item.ID {
				order.Items[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			order.Items = append(order.Items, item)
		}
		total := 0.0
		for _, it := range order.Items {
			total += it.PriceAtTime * float64(it.Quantity)
		}
		order.TotalAmount = total
		order.UpdatedAt = time.Now().UTC()

		e.cache.ApplyDelta(order)
		e.mu.Unlock()
		e.commit()
	})
	return nil
}

func (e *Engine) loop() {
	for {
		select {
		case <-e.runCtx.Done():
			return
		case job := <-e.jobs:
			job()
		}
	}
}

func (e *Engine) pollLoop() {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.runCtx.Done():
			return
		case <-ticker.C:
			if !e.foreground.Load() {
				continue
			}
			e.goWorker(e.refresh)
		}
	}
}

func (e *Engine) refresh(ctx context.Context) {
	t0 := time.Now()

	active, err := e.fetcher.FetchActive(ctx, domain.ActiveStatuses())
	if err != nil {
		e.logger.Warn("active-orders pull failed", zap.Error(err))
		e.metrics.ObserveRefresh(observability.RefreshSourcePull, sinceMs(t0), false)
		e.loadFallback(ctx, "refresh failure")
		return
	}

	cancelled, err := e.fetcher.FetchCancelled(ctx, e.cfg.CancelledLimit)
	if err != nil {
		e.logger.Warn("cancelled-orders pull failed", zap.Error(err))
		e.metrics.ObserveRefresh(observability.RefreshSourcePull, sinceMs(t0), false)
		e.loadFallback(ctx, "refresh failure")
		return
	}

	merged := active.Clone()
	merged[domain.StatusCancelled] = cancelled

	e.enqueue("refresh", func() {
		e.mu.Lock()
		e.cache.ApplyFullSnapshot(merged)
		e.mu.Unlock()
		e.commit()
		e.metrics.ObserveRefresh(observability.RefreshSourcePull, sinceMs(t0), true)
	})
}

func (e *Engine) loadFallback(ctx context.Context, reason string) {
	t0 := time.Now()

	buckets, ok, err := e.store.ReadIfFresh(ctx, e.cfg.FreshnessWindow)
	if err != nil {
		e.logger.Warn("fallback snapshot read failed", zap.String("reason", reason), zap.Error(err))
		e.metrics.IncFallbackMiss()
		return
	}
	if !ok {
		e.logger.Info("no usable fallback snapshot, keeping last-known state",
			zap.String("reason", reason),
		)
		e.metrics.IncFallbackMiss()
		return
	}

	e.metrics.IncFallbackHit()
	e.enqueue("fallback", func() {
		e.mu.Lock()
		e.cache.ApplyFullSnapshot(buckets)
		e.mu.Unlock()
		e.commitNoPersist()
		e.metrics.ObserveRefresh(observability.RefreshSourceFallback, sinceMs(t0), true)
	})
}

// commit publishes the post-mutation state: notify every subscriber, then
// write the snapshot through to the persistent store, best effort.
func (e *Engine) commit() {
	snap := e.commitNoPersist()

	if err := e.store.Write(e.runContext(), snap); err != nil {
		e.logger.Warn("snapshot write-through failed", zap.Error(err))
		e.metrics.IncSnapshotWrite(false)
		return
	}
	e.metrics.IncSnapshotWrite(true)
}

// commitNoPersist notifies subscribers without the write-through. Used for
// state that just came FROM the persistent store.
func (e *Engine) commitNoPersist() domain.OrdersByBucket {
	snap := e.Snapshot()
	t0 := time.Now()
	e.registry.NotifyAll(snap)
	e.metrics.ObserveNotify(e.registry.Len(), sinceMs(t0))
	return snap
}

func (e *Engine) enqueue(kind string, job func()) {
	ctx := e.runContext()
	select {
	case e.jobs <- job:
	case <-ctx.Done():
		e.logger.Info("engine stopped, dropping job", zap.String("kind", kind))
	}
}

func (e *Engine) runContext() context.Context {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

func sinceMs(t0 time.Time) float64 {
	return float64(time.Since(t0).Microseconds()) / 1000.0
}
