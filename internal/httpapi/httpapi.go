// Package httpapi is the console-facing read surface over the sync engine:
// current bucket state, single-order lookup, and a manual refresh trigger.
// Rendering belongs to the web console; this only serves JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/domain"
	"github.com/forkline/ordersync/internal/observability"
)

// Engine is the slice of the sync engine the HTTP surface needs.
type Engine interface {
	Snapshot() domain.OrdersByBucket
	RefreshOrders()
}

type Server struct {
	engine  Engine
	ready   func() bool
	router  chi.Router
	logger  *zap.Logger
	metrics observability.Metrics
}

func New(engine Engine, ready func() bool, logger *zap.Logger, metrics observability.Metrics) *Server {
	s := &Server{
		engine:  engine,
		ready:   ready,
		logger:  logger,
		metrics: metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		ServerTimingApp(s.metrics),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", s.readyz)
	r.Get("/orders", s.getOrders)
	r.Get("/orders/{order_id}", s.getOrder)
	r.Post("/orders/refresh", s.refresh)

	s.router = r
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Not-ready only means the live channel is down; the snapshot may
	// still be served from last-known state.
	if s.ready != nil && !s.ready() {
		http.Error(w, "live channel not connected", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getOrders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Snapshot())
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")
	if id == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}

	snap := s.engine.Snapshot()
	for _, st := range domain.Buckets() {
		for _, o := range snap[st] {
			if o.ID == id {
				writeJSON(w, o)
				return
			}
		}
	}
	http.Error(w, "no order with this id", http.StatusNotFound)
}

func (s *Server) refresh(w http.ResponseWriter, _ *http.Request) {
	s.engine.RefreshOrders()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv.ListenAndServe()
}
