// Package api is the client for the remote order-query API, the pull side
// of reconciliation. The API is free to answer with either a flat order
// list or a pre-bucketed mapping; both shapes are accepted here so the
// engine never has to care.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
)

// RetryPolicy caps how hard a single pull is retried before the engine
// falls back to the persisted snapshot.
type RetryPolicy struct {
	Attempts uint
	Base     time.Duration
	Max      time.Duration
}

type BreakerPolicy struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	retry   RetryPolicy
	logger  *zap.Logger
}

func NewClient(baseURL string, retryPolicy RetryPolicy, breakerPolicy BreakerPolicy, logger *zap.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "order-query",
		MaxRequests: breakerPolicy.MaxHalfOpen,
		Timeout:     breakerPolicy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerPolicy.Threshold
		},
	})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: cb,
		retry:   retryPolicy,
		logger:  logger,
	}
}

// FetchActive pulls every order currently in one of the given statuses,
// bucketed by status. The filter is sent as a comma-joined status set.
func (c *Client) FetchActive(ctx context.Context, statuses []domain.Status) (domain.OrdersByBucket, error) {
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, string(st))
	}
	q := url.Values{}
	q.Set("status", strings.Join(parts, ","))

	raw, err := c.get(ctx, "/orders?"+q.Encode())
	if err != nil {
		return nil, err
	}
	buckets, err := decodeOrders(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode active orders: %v", domain.ErrFetch, err)
	}
	return buckets, nil
}

// FetchCancelled pulls recently cancelled orders, newest last, paging until
// limit is reached or the API runs dry.
func (c *Client) FetchCancelled(ctx context.Context, limit int) ([]domain.Order, error) {
	const pageSize = 50

	var out []domain.Order
	for page := 1; len(out) < limit; page++ {
		q := url.Values{}
		q.Set("status", string(domain.StatusCancelled))
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		raw, err := c.get(ctx, "/orders/cancelled?"+q.Encode())
		if err != nil {
			return nil, err
		}
		buckets, err := decodeOrders(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decode cancelled orders: %v", domain.ErrFetch, err)
		}

		got := 0
		for _, orders := range buckets {
			for _, o := range orders {
				got++
				if len(out) < limit {
					o.Status = domain.StatusCancelled
					out = append(out, o)
				}
			}
		}
		if got < pageSize {
			break
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			res, err := c.breaker.Execute(func() (interface{}, error) {
				return c.doGet(ctx, path)
			})
			if err != nil {
				return err
			}
			body = res.([]byte)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retry.Attempts),
		retry.Delay(c.retry.Base),
		retry.MaxDelay(c.retry.Max),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// An open breaker will not heal within one pull cycle; let the
			// engine fall back to the persisted snapshot instead.
			return !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			c.logger.Warn("order-query pull failed, retrying",
				zap.Uint("attempt", attempt),
				zap.String("path", path),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrFetch, path, err)
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// decodeOrders accepts both response shapes: a flat JSON array of orders,
// which gets bucketed by each order's own status, or an object already
// keyed by bucket name.
func decodeOrders(raw []byte) (domain.OrdersByBucket, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return domain.OrdersByBucket{}, nil
	}

	switch trimmed[0] {
	case '[':
		var flat []domain.Order
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, err
		}
		buckets := domain.OrdersByBucket{}
		for _, o := range flat {
			if o.ID == "" || !o.Status.Valid() {
				continue
			}
			buckets[o.Status] = append(buckets[o.Status], o)
		}
		return buckets, nil
	case '{':
		var keyed map[string][]domain.Order
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
		buckets := domain.OrdersByBucket{}
		for key, orders := range keyed {
			st, err := domain.ParseStatus(key)
			if err != nil {
				// Unknown bucket keys are skipped, not fatal: the API may
				// grow buckets this engine does not track.
				continue
			}
			buckets[st] = append(buckets[st], orders...)
		}
		return buckets, nil
	}
	return nil, fmt.Errorf("unrecognized response shape")
}
