package metrics

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Ap3pp3rs94/signal-broker/internal/registry"
	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// Status serves the broker's read-only status surface: "/", "/health",
// and "/clients". The broker sits behind a trusted terminator that
// forwards the originating address in X-Forwarded-For, per the external
// interfaces contract.
type Status struct {
	reg     *registry.Registry
	metrics *Collector
	log     *telemetry.Logger
}

func NewStatus(reg *registry.Registry, metrics *Collector, log *telemetry.Logger) *Status {
	return &Status{reg: reg, metrics: metrics, log: log}
}

type healthClients struct {
	Current int      `json:"current"`
	Total   uint64   `json:"total"`
	List    []string `json:"list,omitempty"`
}

type healthMessages struct {
	Total  uint64            `json:"total"`
	ByType map[string]uint64 `json:"byType"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Clients   healthClients  `json:"clients"`
	Messages  healthMessages `json:"messages"`
	Uptime    float64        `json:"uptime"`
	Timestamp string         `json:"timestamp"`
}

func (s *Status) Health(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()

	clients := healthClients{
		Current: s.reg.Count(),
		Total:   snap.TotalConnections,
	}
	if isLoopback(r) {
		clients.List = s.reg.Snapshot()
	}

	resp := healthResponse{
		Status:  "healthy",
		Clients: clients,
		Messages: healthMessages{
			Total:  snap.TotalEnvelopes,
			ByType: snap.ByType,
		},
		Uptime:    snap.UptimeSeconds,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Status) Clients(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": s.reg.Snapshot()})
}

func (s *Status) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// isLoopback reports whether the originating address, read from
// X-Forwarded-For when present and otherwise RemoteAddr, is a loopback
// address.
func isLoopback(r *http.Request) bool {
	addr := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		addr = strings.TrimSpace(parts[0])
	}

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Recover is panic-recovery middleware for the status surface: a panic in
// a handler is logged at ERROR and answered with 500 if the handler has
// not written a status yet.
func (s *Status) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("status handler panic", map[string]any{"path": r.URL.Path, "recover": rec})
				if sw.status == 0 {
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
				}
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

// AccessLog logs method, path, status, and duration for every status
// surface request.
func (s *Status) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info("status request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start).String(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
