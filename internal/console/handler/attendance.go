package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/engine"
	"github.com/xela07ax/attendance-engine/internal/ingest"
)

// maxEventSize — событие распознавания это пара полей, больше не ждем
const maxEventSize = 64 << 10

// AttendanceService — то, что нужно хендлеру от ядра
type AttendanceService interface {
	Submit(ctx context.Context, ev domain.RecognitionEvent) (domain.SubmitOutcome, error)
	Records(ctx context.Context, limit int) ([]domain.AttendanceEntry, error)
}

type AttendanceHandler struct {
	service AttendanceService
	now     func() time.Time
}

func NewAttendanceHandler(s AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: s, now: time.Now}
}

// Submit принимает событие распознавания от камеры.
// POST /api/v1/attendance
// 201 — запись создана, 200 — событие поглощено (повтор или низкая уверенность).
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEventSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ev, err := ingest.DecodeEvent(raw, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.service.Submit(engine.WithTransport(r.Context(), "http"), ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if out.Status == domain.StatusRecorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// List возвращает последние записи, самые свежие первыми.
// GET /api/v1/attendance?limit=50
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.service.Records(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
