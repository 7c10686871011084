package cache

import (
	"github.com/forkline/ordersync/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the single in-memory owner of canonical order state, partitioned
// by lifecycle bucket. It is mutated by exactly one writer (the sync
// engine) from a single goroutine, so it carries no locks of its own.
//
// Invariants:
//   - an order id lives in at most one bucket at any observable snapshot;
//   - applying the same delta twice is a no-op relative to applying it once;
//   - a full snapshot fully replaces bucket contents, nothing leaks through.
type Cache struct {
	active    map[domain.Status][]domain.Order
	cancelled *lru.Cache[string, domain.Order]
	index     map[string]domain.Status
}

func New(cancelledWindow int) (*Cache, error) {
	c := &Cache{
		active: make(map[domain.Status][]domain.Order),
		index:  make(map[string]domain.Status),
	}
	for _, st := range domain.ActiveStatuses() {
		c.active[st] = nil
	}
	// The cancelled bucket is a bounded recency window: once it is full the
	// oldest cancelled order ages out, mirroring the bounded recent-cancelled
	// query on the refresh path.
	l, err := lru.NewWithEvict[string, domain.Order](cancelledWindow, func(id string, _ domain.Order) {
		if c.index[id] == domain.StatusCancelled {
			delete(c.index, id)
		}
	})
	if err != nil {
		return nil, err
	}
	c.cancelled = l
	return c, nil
}

// ApplyDelta removes the order from whichever bucket currently holds it and
// reinserts it under its new status. completed is terminal: the order is
// simply not reinserted anywhere.
func (c *Cache) ApplyDelta(order domain.Order) {
	c.remove(order.ID)
	if !order.Status.Retained() {
		return
	}
	c.insert(order)
}

// ApplyFullSnapshot atomically replaces all bucket contents with the given
// mapping, filtered to retained statuses. Orders from the prior state that
// are absent from the snapshot do not survive.
func (c *Cache) ApplyFullSnapshot(byBucket domain.OrdersByBucket) {
	for st := range c.active {
		c.active[st] = nil
	}
	c.cancelled.Purge()
	c.index = make(map[string]domain.Status)

	for _, st := range domain.Buckets() {
		for _, o := range byBucket[st] {
			if o.ID == "" {
				continue
			}
			// The bucket key wins over whatever the payload claims; a
			// snapshot is the server's authoritative partitioning.
			o.Status = st
			c.remove(o.ID)
			c.insert(o)
		}
	}
}

// Snapshot returns a deep-copied read-only view of all buckets. Insertion
// order within a bucket is stable; the cancelled bucket is ordered oldest
// to newest within its window.
func (c *Cache) Snapshot() domain.OrdersByBucket {
	out := make(domain.OrdersByBucket, len(c.active)+1)
	for _, st := range domain.ActiveStatuses() {
		orders := make([]domain.Order, 0, len(c.active[st]))
		for _, o := range c.active[st] {
			orders = append(orders, o.Clone())
		}
		out[st] = orders
	}
	cancelled := make([]domain.Order, 0, c.cancelled.Len())
	for _, id := range c.cancelled.Keys() {
		if o, ok := c.cancelled.Peek(id); ok {
			cancelled = append(cancelled, o.Clone())
		}
	}
	out[domain.StatusCancelled] = cancelled
	return out
}

// Get returns the order and the bucket it currently sits in.
func (c *Cache) Get(id string) (domain.Order, domain.Status, bool) {
	st, ok := c.index[id]
	if !ok {
		return domain.Order{}, "", false
	}
	if st == domain.StatusCancelled {
		o, ok := c.cancelled.Peek(id)
		return o.Clone(), st, ok
	}
	for _, o := range c.active[st] {
		if o.ID == id {
			return o.Clone(), st, true
		}
	}
	return domain.Order{}, "", false
}

// Len returns the total number of tracked orders.
func (c *Cache) Len() int {
	n := c.cancelled.Len()
	for _, orders := range c.active {
		n += len(orders)
	}
	return n
}

func (c *Cache) insert(order domain.Order) {
	if order.Status == domain.StatusCancelled {
		c.index[order.ID] = domain.StatusCancelled
		c.cancelled.Add(order.ID, order)
		return
	}
	c.index[order.ID] = order.Status
	c.active[order.Status] = append(c.active[order.Status], order)
}

func (c *Cache) remove(id string) {
	st, ok := c.index[id]
	if !ok {
		return
	}
	delete(c.index, id)
	if st == domain.StatusCancelled {
		c.cancelled.Remove(id)
		return
	}
	orders := c.active[st]
	for i, o := range orders {
		if o.ID == id {
			c.active[st] = append(orders[:i], orders[i+1:]...)
			return
		}
	}
}
