package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/commercegrid/adsync-api/internal/authz"
	"github.com/commercegrid/adsync-api/internal/models"
	"github.com/commercegrid/adsync-api/internal/repository"
)

type CursorHandler struct {
	repo repository.CursorRepository
}

func NewCursorHandler(repo repository.CursorRepository) *CursorHandler {
	return &CursorHandler{repo: repo}
}

type cursorView struct {
	models.SyncCursor
	StalenessSeconds float64 `json:"staleness_seconds"`
}

// ListCursors reports every sync cursor for the tenant with how stale each
// one is, for dashboards that watch sync freshness.
func (h *CursorHandler) ListCursors(w http.ResponseWriter, r *http.Request) {
	tid, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "missing tenant identity", http.StatusUnauthorized)
		return
	}

	cursors, err := h.repo.List(r.Context(), tid)
	if err != nil {
		http.Error(w, "Failed to list sync cursors: "+err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now()
	views := make([]cursorView, 0, len(cursors))
	for _, cursor := range cursors {
		views = append(views, cursorView{
			SyncCursor:       cursor,
			StalenessSeconds: cursor.Staleness(now).Seconds(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}
