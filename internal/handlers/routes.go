package handlers

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes adds the health and storage API routes to r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	items := api.PathPrefix("/items/{id}").Subrouter()
	items.HandleFunc("/image", h.UploadImage).Methods("POST")
	items.HandleFunc("/image", h.GetImage).Methods("GET")
	items.HandleFunc("/image", h.DeleteImage).Methods("DELETE")

	storage := api.PathPrefix("/storage").Subrouter()
	storage.HandleFunc("/health", h.StorageHealth).Methods("GET")
	storage.HandleFunc("/cleanup", h.Cleanup).Methods("POST")
	storage.HandleFunc("/reconcile", h.Reconcile).Methods("POST")
	storage.HandleFunc("/migrate", h.Migrate).Methods("POST")
}
