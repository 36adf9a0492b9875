package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

// AnalyticsService Описываем, что нам нужно от ядра
type AnalyticsService interface {
	Analytics(ctx context.Context, days int, asOf time.Time) (domain.AnalyticsResult, error)
	ExportCSV(ctx context.Context, days int, asOf time.Time) ([]byte, error)
	Summary(ctx context.Context, now time.Time) (domain.Summary, error)
}

type AnalyticsHandler struct {
	service     AnalyticsService
	defaultDays int
	loc         *time.Location
	now         func() time.Time
}

func NewAnalyticsHandler(s AnalyticsService, defaultDays int, loc *time.Location) *AnalyticsHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AnalyticsHandler{service: s, defaultDays: defaultDays, loc: loc, now: time.Now}
}

// Get — агрегаты за окно.
// GET /api/v1/analytics?days=30&as_of=2024-01-31
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	days, asOf, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Analytics(r.Context(), days, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export отдает daily_trend в CSV.
// GET /api/v1/analytics/export.csv?days=30
func (h *AnalyticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	days, asOf, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.service.ExportCSV(r.Context(), days, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	name := fmt.Sprintf("attendance_%s.csv", asOf.In(h.loc).Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Stats — карточки дашборда.
// GET /api/v1/stats
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Summary(r.Context(), h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// window разбирает days и as_of. as_of: RFC3339 или YYYY-MM-DD (конец этого дня).
func (h *AnalyticsHandler) window(r *http.Request) (int, time.Time, error) {
	q := r.URL.Query()

	days := h.defaultDays
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("days must be an integer, got %q", v)
		}
		days = n
	}
	if days <= 0 {
		return 0, time.Time{}, fmt.Errorf("%w: got %d", domain.ErrInvalidWindow, days)
	}

	asOf := h.now()
	if v := q.Get("as_of"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			asOf = t
		} else if d, err := time.ParseInLocation(domain.DateLayout, v, h.loc); err == nil {
			asOf = d.AddDate(0, 0, 1).Add(-time.Second)
		} else {
			return 0, time.Time{}, fmt.Errorf("as_of must be RFC3339 or %s, got %q", domain.DateLayout, v)
		}
	}
	return days, asOf, nil
}
