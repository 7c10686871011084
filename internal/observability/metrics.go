package observability

type Metrics interface {
	ObserveDelta(ms float64, ok bool)
	ObserveRefresh(source string, ms float64, ok bool)
	ObserveNotify(subscribers int, ms float64)
	ObserveHTTP(method, route string, status int, durMs float64)
	IncFallbackHit()
	IncFallbackMiss()
	IncSnapshotWrite(ok bool)
}

const (
	RefreshSourcePull     = "pull"
	RefreshSourceFallback = "fallback"
)

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveDelta(float64, bool)               {}
func (Noop) ObserveRefresh(string, float64, bool)     {}
func (Noop) ObserveNotify(int, float64)               {}
func (Noop) ObserveHTTP(string, string, int, float64) {}
func (Noop) IncFallbackHit()                          {}
func (Noop) IncFallbackMiss()                         {}
func (Noop) IncSnapshotWrite(bool)                    {}
