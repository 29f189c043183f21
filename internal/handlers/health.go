package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthCheck reports liveness for probes and the ops dashboard.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "adsync-api",
	})
}
