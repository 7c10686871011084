package domain

import "fmt"

// Status is the closed set of order lifecycle states. Bucket assignment in
// the cache is a total function of this type; anything outside the set is
// rejected at the ingestion boundary, not silently bucketed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusReady      Status = "ready"
	StatusServed     Status = "served"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
)

// Buckets lists the retained statuses in fixed UI scan order. completed is
// terminal and never retained, so it is deliberately absent.
func Buckets() []Status {
	return []Status{StatusPending, StatusInProgress, StatusReady, StatusServed, StatusCancelled}
}

// ActiveStatuses is the status filter used by the periodic refresh pull.
// cancelled is fetched separately through the bounded recent-cancelled query.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusReady, StatusServed}
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusReady, StatusServed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Retained reports whether an order with this status stays in the cache.
// An order reaching completed is dropped from all tracked state; there is
// no history bucket here, a history view has to re-fetch on its own.
func (s Status) Retained() bool {
	return s != StatusCompleted
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}
