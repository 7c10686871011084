package domain

import (
	"errors"
	"time"
)

var (
	ErrUnknownStatus = errors.New("unknown order status")
	ErrInvalidDelta  = errors.New("invalid order delta")

	// ErrTransport marks live-channel connection and handshake failures.
	ErrTransport = errors.New("transport error")
	// ErrFetch marks a failed refresh pull against the order-query API.
	ErrFetch = errors.New("fetch error")
)

// Order is a single kitchen/service order. The cache owns the canonical
// copy once ingested; everything handed to subscribers or HTTP clients is
// a deep copy.
type Order struct {
	ID          string    `json:"order_id"`
	Status      Status    `json:"status"`
	TableRef    string    `json:"table_ref"`
	Items       []Item    `json:"items"`
	TotalAmount float64   `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item is one ordered line item.
type Item struct {
	ID          string  `json:"id"`
	MenuItemID  string  `json:"menu_item_id"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	PriceAtTime float64 `json:"price_at_time"`
	Notes       string  `json:"notes,omitempty"`
}

// Clone returns a deep copy, detaching the Items slice.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]Item, len(o.Items))
		copy(out.Items, o.Items)
	}
	return out
}

// ValidateDelta checks the minimum a push delta must carry before it is
// allowed anywhere near the cache.
func ValidateDelta(o *Order) error {
	if o == nil || o.ID == "" {
		return ErrInvalidDelta
	}
	if !o.Status.Valid() {
		return ErrUnknownStatus
	}
	return nil
}

// OrdersByBucket is a full-replacement payload: every retained bucket maps
// to its new ordered contents.
type OrdersByBucket map[Status][]Order

// Clone deep-copies the whole mapping.
func (m OrdersByBucket) Clone() OrdersByBucket {
	out := make(OrdersByBucket, len(m))
	for st, orders := range m {
		cp := make([]Order, 0, len(orders))
		for _, o := range orders {
			cp = append(cp, o.Clone())
		}
		out[st] = cp
	}
	return out
}

// Count returns the total number of orders across all buckets.
func (m OrdersByBucket) Count() int {
	n := 0
	for _, orders := range m {
		n += len(orders)
	}
	return n
}
