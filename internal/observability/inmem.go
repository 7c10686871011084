package observability

import "sync"

// Inmem keeps a bounded ring of recent observations plus running totals,
// enough for the debug endpoint and for assertions in tests.
type Inmem struct {
	mu     sync.Mutex
	last   []any
	max    int
	totals struct {
		fallbackHits, fallbackMiss       int
		snapshotWrites, snapshotFailures int
	}
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[1:]
	}
}

func (m *Inmem) ObserveDelta(ms float64, ok bool) {
	m.push(struct {
		Kind string
		Dur  float64
		OK   bool
	}{"delta", ms, ok})
}

func (m *Inmem) ObserveRefresh(source string, ms float64, ok bool) {
	m.push(struct {
		Kind   string
		Source string
		Dur    float64
		OK     bool
	}{"refresh", source, ms, ok})
}

func (m *Inmem) ObserveNotify(subscribers int, ms float64) {
	m.push(struct {
		Kind        string
		Subscribers int
		Dur         float64
	}{"notify", subscribers, ms})
}

func (m *Inmem) ObserveHTTP(method, route string, status int, durMs float64) {
	m.push(struct {
		Kind          string
		Method, Route string
		Status        int
		Dur           float64
	}{"http", method, route, status, durMs})
}

func (m *Inmem) IncFallbackHit() {
	m.mu.Lock()
	m.totals.fallbackHits++
	m.mu.Unlock()
}

func (m *Inmem) IncFallbackMiss() {
	m.mu.Lock()
	m.totals.fallbackMiss++
	m.mu.Unlock()
}

func (m *Inmem) IncSnapshotWrite(ok bool) {
	m.mu.Lock()
	if ok {
		m.totals.snapshotWrites++
	} else {
		m.totals.snapshotFailures++
	}
	m.mu.Unlock()
}

// FallbackHits is exposed for tests and the debug endpoint.
func (m *Inmem) FallbackHits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals.fallbackHits
}

// Recent returns a copy of the observation ring.
func (m *Inmem) Recent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.last))
	copy(out, m.last)
	return out
}
