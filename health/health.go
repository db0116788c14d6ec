// Package health exposes the engine's /healthz and /metrics HTTP surface,
// bound to the optional PORT environment variable (spec §6).
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/governor"
	"github.com/hazyhaar/veillebot/store"
)

// Snapshot is the metrics view returned by GET /metrics and by the
// Commander's health() call.
type Snapshot struct {
	Status           string `json:"status"`
	UserCount        int    `json:"user_count"`
	MonitorCount     int    `json:"monitor_count"`
	NotificationDepth int   `json:"notification_queue_depth"`
	Congested        bool   `json:"congested"`
	OpenBreakers     int    `json:"open_breakers"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// Server is the health/metrics HTTP surface.
type Server struct {
	store     *store.Store
	gov       *governor.Governor
	breakers  *breaker.Registry
	startedAt time.Time
	logger    *slog.Logger
	srv       *http.Server
}

// New builds a Server bound to addr (e.g. ":8080"). addr == "" means the
// caller should not call ListenAndServe; Snapshot remains usable directly.
func New(addr string, st *store.Store, gov *governor.Governor, breakers *breaker.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     st,
		gov:       gov,
		breakers:  breakers,
		startedAt: time.Now(),
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// ListenAndServe starts the HTTP server. Callers typically run this in a
// goroutine and call Shutdown during engine teardown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown closes the HTTP server immediately; in-flight requests are not
// waited for.
func (s *Server) Shutdown() error {
	return s.srv.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// Snapshot assembles the current metrics view. Used by both the HTTP
// handler and the Commander's health() method so the two surfaces never
// drift.
func (s *Server) Snapshot() Snapshot {
	doc := s.store.Snapshot()

	userCount := len(doc.Users)
	monitorCount := 0
	for _, u := range doc.Users {
		monitorCount += len(u.Monitors)
	}

	openBreakers := 0
	for _, ps := range s.breakers.Snapshot() {
		if ps.State == breaker.Open {
			openBreakers++
		}
	}

	return Snapshot{
		Status:            "ok",
		UserCount:         userCount,
		MonitorCount:      monitorCount,
		NotificationDepth: s.gov.QueueDepth(),
		Congested:         s.gov.IsCongested(),
		OpenBreakers:      openBreakers,
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
	}
}
