package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xela07ax/attendance-engine/internal/audit"
	"github.com/xela07ax/attendance-engine/internal/domain"
)

type JournalService interface {
	FetchRecent(ctx context.Context, personID string, limit int) ([]audit.Event, error)
	Stats(ctx context.Context) (domain.IngestStats, error)
}

type JournalHandler struct {
	service JournalService
}

func NewJournalHandler(s JournalService) *JournalHandler {
	return &JournalHandler{service: s}
}

// GetLogs возвращает журнал распознаваний с фильтром по человеку
// GET /api/v1/journal?person_id=...&limit=...
func (h *JournalHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	personID := r.URL.Query().Get("person_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.service.FetchRecent(r.Context(), personID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch recognition journal")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetStats — сводка входящего потока за последний час
func (h *JournalHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
