package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/commercegrid/adsync-api/internal/authz"
	"github.com/commercegrid/adsync-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(runs *handlers.RunHandler, cursors *handlers.CursorHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authz.RequireTenant)
	api.HandleFunc("/runs", runs.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}", runs.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/cursors", cursors.ListCursors).Methods(http.MethodGet)

	return router
}
