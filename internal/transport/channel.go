// Package transport owns the one logical live connection to the push
// channel. It joins a restaurant-scoped topic, forwards inbound events to
// registered listeners, and reconnects with capped exponential backoff
// when the connection drops. Delivery is at-most-once: there is no retry
// queue for outbound messages and no redelivery for inbound ones.
package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
)

// Event names the inbound/outbound message types on the live channel.
type Event string

const (
	// EventOrderUpdate carries a single order delta.
	EventOrderUpdate Event = "order-update"
	// EventKitchenChanged is a broadcast that kitchen state moved in some
	// unspecified way; consumers react by pulling a full refresh.
	EventKitchenChanged Event = "kitchen-changed"

	// Upstream message types.
	EventJoinRoom      Event = "join-room"
	EventRequestUpdate Event = "request-update"
)

const eventHeader = "event"

// Handler receives the raw payload of one inbound message.
type Handler func(payload []byte)

// Reader is the inbound side of the underlying transport.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer is the outbound side.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

type Config struct {
	Brokers   []string
	EmitTopic string
	GroupID   string
	Backoff   Backoff
}

// Channel maintains one logical live connection per process.
type Channel struct {
	cfg     Config
	channel string // restaurant-scoped topic, derived from the session
	logger  *zap.Logger

	// Factories and the dial probe are swappable so tests can drive the
	// loop with fakes.
	newReader func() Reader
	newWriter func() Writer
	dial      func(ctx context.Context) error

	mu           sync.Mutex
	started      bool
	connected    bool
	cancel       context.CancelFunc
	writer       Writer
	listeners    map[Event]map[uint64]Handler
	nextListener uint64
	connectHooks []func()

	wg sync.WaitGroup
}

func NewChannel(cfg Config, orderChannel string, logger *zap.Logger) *Channel {
	c := &Channel{
		cfg:       cfg,
		channel:   orderChannel,
		logger:    logger,
		listeners: make(map[Event]map[uint64]Handler),
	}
	c.newReader = func() Reader {
		return kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   c.channel,
			GroupID: cfg.GroupID,
		})
	}
	c.newWriter = func() Writer {
		return &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.EmitTopic,
			Balancer: &kafkago.LeastBytes{},
		}
	}
	// The dial probe proves a broker is reachable before the channel calls
	// itself connected. Reader construction alone proves nothing: kafka-go
	// builds readers without touching the network.
	c.dial = func(ctx context.Context) error {
		var lastErr error
		for _, addr := range cfg.Brokers {
			conn, err := kafkago.DialContext(ctx, "tcp", addr)
			if err == nil {
				return conn.Close()
			}
			lastErr = err
		}
		return lastErr
	}
	return c
}

// Connect starts the live connection. It is idempotent: calling it while a
// connection already exists is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if len(c.cfg.Brokers) == 0 {
		return domain.ErrTransport
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.writer = c.newWriter()
	c.started = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
	return nil
}

// Ready reports whether the channel currently believes it is connected.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On registers a listener for a named inbound event and returns its id for
// Off. Multiple listeners per event are supported.
func (c *Channel) On(event Event, h Handler) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	set, ok := c.listeners[event]
	if !ok {
		set = make(map[uint64]Handler)
		c.listeners[event] = set
	}
	set[id] = h
	return id
}

// Off removes a previously registered listener.
func (c *Channel) Off(event Event, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.listeners[event]; ok {
		delete(set, id)
	}
}

// OnConnect registers a hook fired after every successful (re)connect.
// The sync engine hangs its repair refresh here.
func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectHooks = append(c.connectHooks, fn)
}

// Emit sends a message upstream. When no connection is active the message
// is logged and dropped; there is no retry queue.
func (c *Channel) Emit(ctx context.Context, event Event, payload []byte) {
	c.mu.Lock()
	connected := c.connected
	w := c.writer
	c.mu.Unlock()

	if !connected || w == nil {
		c.logger.Warn("emit with no active connection, dropping message",
			zap.String("event", string(event)),
		)
		return
	}

	err := w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(c.channel),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: eventHeader, Value: []byte(event)},
		},
	})
	if err != nil {
		c.logger.Warn("emit failed, message dropped",
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}

// Teardown stops the connection and future push delivery. Work already in
// flight elsewhere (a refresh pull, say) is not cancelled here.
func (c *Channel) Teardown() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.connected = false
	cancel := c.cancel
	w := c.writer
	c.writer = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	if w != nil {
		_ = w.Close()
	}
}

// run owns the connect / serve / backoff cycle until the context dies. A
// cycle that never served a single message grows the pause before the next
// attempt, so a broker outage is a slow trickle of reconnects rather than
// a storm of connect hooks and repair refreshes.
func (c *Channel) run(ctx context.Context) {
	delay := c.cfg.Backoff.Base
	for ctx.Err() == nil {
		if err := c.establish(ctx); err != nil {
			return
		}
		reader := c.newReader()

		c.markConnected()
		c.logger.Info("live channel joined", zap.String("channel", c.channel))
		c.Emit(ctx, EventJoinRoom, []byte(c.channel))
		c.fireConnectHooks()

		delivered, err := c.serve(ctx, reader)
		_ = reader.Close()
		c.markDisconnected()

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		c.logger.Warn("live channel lost, reconnecting", zap.Error(err))

		if delivered {
			delay = c.cfg.Backoff.Base
			continue
		}
		sleepWithContext(ctx, delay)
		delay *= 2
		if delay > c.cfg.Backoff.Max {
			delay = c.cfg.Backoff.Max
		}
	}
}

// establish retries the dial probe with capped exponential backoff until a
// broker answers or the channel is torn down.
func (c *Channel) establish(ctx context.Context) error {
	return retry.Do(
		func() error { return c.dial(ctx) },
		retry.Context(ctx),
		retry.Attempts(0), // keep trying until torn down
		retry.Delay(c.cfg.Backoff.Base),
		retry.MaxDelay(c.cfg.Backoff.Max),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// serve is the fetch/dispatch/commit loop. delivered reports whether any
// message was served before the connection failed; run uses it to decide
// whether the cycle counts toward the reconnect backoff.
func (c *Channel) serve(ctx context.Context, reader Reader) (bool, error) {
	failures := 0
	delivered := false
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return delivered, err
			}
			if isBenignFetchTimeout(err) {
				c.logger.Debug("fetch timeout (idle)", zap.Error(err))
				sleepWithContext(ctx, c.cfg.Backoff.Base)
				continue
			}
			failures++
			if failures >= 3 {
				return delivered, err
			}
			c.logger.Warn("fetch error, backing off", zap.Error(err))
			sleepWithContext(ctx, c.cfg.Backoff.Base)
			continue
		}
		failures = 0
		delivered = true

		c.dispatch(msg)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("commit failed",
				zap.Error(err),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

func (c *Channel) dispatch(msg kafkago.Message) {
	event := EventOrderUpdate
	for _, h := range msg.Headers {
		if h.Key == eventHeader {
			event = Event(h.Value)
			break
		}
	}

	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.listeners[event]))
	for _, h := range c.listeners[event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.logger.Debug("inbound event with no listeners", zap.String("event", string(event)))
		return
	}
	for _, h := range handlers {
		h(msg.Value)
	}
}

func (c *Channel) markConnected() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

func (c *Channel) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Channel) fireConnectHooks() {
	c.mu.Lock()
	hooks := make([]func(), len(c.connectHooks))
	copy(hooks, c.connectHooks)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isBenignFetchTimeout(err error) bool {
	s := err.Error()
	return strings.Contains(s, "Request Timed Out") ||
		strings.Contains(s, "no messages received from kafka within the allocated time")
}
