package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthStatus is the /healthz body
type healthStatus struct {
	Status           string    `json:"status"`
	RunID            string    `json:"runId"`
	SimulationActive bool      `json:"simulationActive"`
	ActiveDrones     int       `json:"activeDrones"`
	TrackingSessions int       `json:"trackingSessions"`
	WebSocketClients int       `json:"websocketClients"`
	Time             time.Time `json:"time"`
}

// router serves the ops endpoints
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", a.handleHealth)
	if a.hub != nil {
		r.Handle("/ws", a.hub)
	}
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := healthStatus{
		Status:           "ok",
		RunID:            a.journal.RunID(),
		SimulationActive: a.scheduler.Running(),
		ActiveDrones:     a.scheduler.Registry().Len(),
		TrackingSessions: len(a.monitor.Sessions()),
		Time:             a.clock.Now(),
	}
	if a.hub != nil {
		status.WebSocketClients = a.hub.Clients()
	}
	if !status.SimulationActive {
		status.Status = "stopped"
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.SimulationActive {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// serve runs the ops server until ctx is done, then shuts it down gracefully.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("Ops server listening on %s (/metrics, /healthz, /ws)", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
