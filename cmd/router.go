package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angeloszaimis/users-cluster/internal/backend"
	"github.com/angeloszaimis/users-cluster/internal/metrics"
)

type workerLister interface {
	Workers() []*backend.Backend
}

type workerStatus struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Port              int    `json:"port"`
	Pid               int    `json:"pid"`
	Alive             bool   `json:"alive"`
	ActiveConnections int    `json:"active_connections"`
}

// setupAdminRouter serves the admin listener, kept apart from the public one
// so every public path reaches the workers.
func setupAdminRouter(collector *metrics.Collector, workers workerLister, algorithm string) http.Handler {
	r := chi.NewRouter()

	r.Get("/metrics", collector.Handler(algorithm))
	r.Get("/workers", func(w http.ResponseWriter, r *http.Request) {
		statuses := []workerStatus{}
		for _, b := range workers.Workers() {
			statuses = append(statuses, workerStatus{
				ID:                b.ID(),
				Name:              b.Name(),
				Port:              b.Port(),
				Pid:               b.Pid(),
				Alive:             b.Alive(),
				ActiveConnections: b.ActiveConnections(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return r
}
