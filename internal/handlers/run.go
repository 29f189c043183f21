package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/commercegrid/adsync-api/internal/authz"
	"github.com/commercegrid/adsync-api/internal/repository"
)

type RunHandler struct {
	repo repository.RunRepository
}

func NewRunHandler(repo repository.RunRepository) *RunHandler {
	return &RunHandler{repo: repo}
}

func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	tid, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "missing tenant identity", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	runs, err := h.repo.List(r.Context(), tid, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list sync runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	tid, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "missing tenant identity", http.StatusUnauthorized)
		return
	}
	runID := mux.Vars(r)["runID"]

	run, err := h.repo.Get(r.Context(), tid, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "sync run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get sync run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}
