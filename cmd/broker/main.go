// Command broker runs the signaling broker: one listener serving both
// the read-only status surface and the upgraded signaling surface.
package main

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Ap3pp3rs94/signal-broker/internal/config"
	"github.com/Ap3pp3rs94/signal-broker/internal/hub"
	"github.com/Ap3pp3rs94/signal-broker/internal/identity"
	"github.com/Ap3pp3rs94/signal-broker/internal/metrics"
	"github.com/Ap3pp3rs94/signal-broker/internal/ratelimit"
	"github.com/Ap3pp3rs94/signal-broker/internal/registry"
	"github.com/Ap3pp3rs94/signal-broker/internal/router"
	"github.com/Ap3pp3rs94/signal-broker/internal/shutdown"
	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

func main() {
	cfg := config.Load()
	log := telemetry.New(cfg.LogLevel)

	protected, err := identity.LoadProtectedSet(cfg.ProtectedIdentitiesFile)
	if err != nil {
		log.Warn("falling back to default protected identities", map[string]any{"err": err.Error()})
	}

	reg := registry.New(protected)
	mc := metrics.New()
	limiter := ratelimit.New(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateBucketMaxIdle)
	rt := router.New(reg, log, mc)

	h := hub.New(hub.Config{
		MaxFrameBytes:     cfg.MaxFrameBytes,
		KeepaliveInterval: cfg.KeepaliveInterval,
	}, reg, rt, limiter, mc, log)

	stopReaper := make(chan struct{})
	go limiter.Reap(cfg.RateBucketSweep, stopReaper)
	defer close(stopReaper)

	status := metrics.NewStatus(reg, mc, log)

	r := mux.NewRouter()
	r.HandleFunc("/", status.Health).Methods(http.MethodGet)
	r.HandleFunc("/health", status.Health).Methods(http.MethodGet)
	r.HandleFunc("/clients", status.Clients).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.ServeHTTP)
	r.NotFoundHandler = http.HandlerFunc(status.NotFound)

	handler := status.AccessLog(status.Recover(r))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.StatusReadTimeout,
		WriteTimeout: cfg.StatusReadTimeout,
		IdleTimeout:  cfg.StatusReadTimeout,
	}

	go func() {
		log.Info("broker listening", map[string]any{"addr": cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listener error", map[string]any{"err": err.Error()})
		}
	}()

	coord := shutdown.New(log, cfg.ShutdownTimeout)
	coord.Wait(context.Background(), h.CloseAll, func() error {
		return srv.Shutdown(context.Background())
	})
}
